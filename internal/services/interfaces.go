package services

import (
	"context"
	"time"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Gender        = domain.Gender
	ProductType   = domain.ProductType
	Product       = domain.Product
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	PaymentStatus = domain.PaymentStatus
	Money         = domain.Money
)

// OrderService owns checkout, the order lifecycle state machines, and the
// deletion guard.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error)
	SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error)
	BulkSetStatus(ctx context.Context, cmd BulkSetStatusCommand) (int, error)
	UpdateDetails(ctx context.Context, cmd UpdateOrderDetailsCommand) (Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

// CatalogService serves the public catalog read surface plus the small admin
// slice checkout depends on: the stock toggle, taxonomy deletion guards, and
// signed product-image URLs.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	SetProductStock(ctx context.Context, productID string, inStock bool) (Product, error)
	ListGenders(ctx context.Context) ([]Gender, error)
	DeleteGender(ctx context.Context, genderID string) error
	ListProductTypes(ctx context.Context) ([]ProductType, error)
	DeleteProductType(ctx context.Context, productTypeID string) error
	ProductImageUploadURL(ctx context.Context, cmd ImageUploadCommand) (SignedImageURL, error)
	ProductImageURL(ctx context.Context, object string) (SignedImageURL, error)
}

// AnalyticsService computes the dashboard rollups. Every window derives from
// one "now" captured per call, anchored to the business timezone.
type AnalyticsService interface {
	DashboardStats(ctx context.Context) (DashboardStats, error)
	RevenueChart(ctx context.Context, months int) ([]RevenuePoint, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	GenderBreakdown(ctx context.Context) ([]GenderShare, error)
	RecentOrders(ctx context.Context, limit int) ([]Order, error)
}

// PaymentService opens PSP payment intents for pending orders and applies
// webhook notifications onto payment status.
type PaymentService interface {
	CreateIntent(ctx context.Context, orderID string) (PaymentIntent, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (Order, error)
}

// OrderEventPublisher hands order lifecycle events to the messaging backend.
// The returned id identifies the published message.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// OrderEventMessage is the wire payload for order lifecycle events.
type OrderEventMessage struct {
	Event         string    `json:"event"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	Status        string    `json:"status,omitempty"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	TotalMinor    int64     `json:"totalMinor"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// ImageURLSigner issues time-limited URLs for product image objects.
type ImageURLSigner interface {
	SignedImageURL(ctx context.Context, object string) (string, time.Time, error)
	SignedUploadURL(ctx context.Context, object string, contentType string) (string, time.Time, error)
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand is the checkout payload.
type CreateOrderCommand struct {
	CustomerName  string
	CustomerPhone string
	AddressLine1  string
	City          string
	Latitude      *float64
	Longitude     *float64
	Items         []CreateOrderItem
}

// CreateOrderItem is one requested cart line.
type CreateOrderItem struct {
	ProductID string
	Quantity  int
	Size      *string
	Color     *string
}

// OrderListFilter narrows admin order listings.
type OrderListFilter = repositories.OrderListFilter

type SetOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
}

type SetPaymentStatusCommand struct {
	OrderID       string
	PaymentStatus PaymentStatus
}

type BulkSetStatusCommand struct {
	OrderIDs []string
	Status   OrderStatus
}

// UpdateOrderDetailsCommand lists the mutable post-creation order fields.
// Nil pointers leave the field unchanged. Coordinates go through the same
// range validation as checkout: an out-of-range value clears the field.
type UpdateOrderDetailsCommand struct {
	OrderID       string
	CustomerName  *string
	CustomerPhone *string
	AddressLine1  *string
	City          *string
	Latitude      *float64
	Longitude     *float64
	// ShippingCost is minor currency units. Changing it recomputes the total;
	// the subtotal is immutable once the order exists.
	ShippingCost *int64
}

// ProductListFilter narrows public product listings.
type ProductListFilter struct {
	GenderID      string
	ProductTypeID string
	InStock       *bool
	IsNew         *bool
	IsSale        *bool
	Limit         int
}

// ImageUploadCommand requests a signed upload slot for a product image.
type ImageUploadCommand struct {
	FileName    string
	ContentType string
}

// SignedImageURL carries a time-limited storage URL.
type SignedImageURL struct {
	Object    string
	URL       string
	ExpiresAt time.Time
}

// PaymentIntent is the client-facing payment handle for a pending order.
type PaymentIntent struct {
	OrderID      string
	IntentID     string
	ClientSecret string
	Amount       Money
	Currency     string
	ExpiresAt    time.Time
}

// DashboardStats is the full admin dashboard payload.
type DashboardStats struct {
	Revenue   RevenueStats
	Orders    OrderStats
	Products  ProductStats
	Customers CustomerStats
}

// RevenueStats sums order totals, excluding cancelled orders.
type RevenueStats struct {
	Lifetime       Money
	Today          Money
	ThisMonth      Money
	LastMonth      Money
	MonthChangePct float64
}

// OrderStats counts orders. Counts are not status-filtered.
type OrderStats struct {
	Lifetime       int64
	Today          int64
	ThisMonth      int64
	LastMonth      int64
	Pending        int64
	MonthChangePct float64
	ByStatus       map[OrderStatus]int64
}

// ProductStats carries catalog KPI counters plus the restock queue: the
// out-of-stock products that historically sold best.
type ProductStats struct {
	Total        int64
	InStock      int64
	OutOfStock   int64
	NewArrival   int64
	OnSale       int64
	RestockFirst []ProductSales
}

// ProductSales pairs a product with its sales counter.
type ProductSales struct {
	ProductID string
	Title     string
	Image     *string
	Price     Money
	Sales     int64
}

// CustomerStats approximates customers as distinct phone numbers.
type CustomerStats struct {
	Lifetime       int64
	ThisMonth      int64
	LastMonth      int64
	MonthChangePct float64
}

// RevenuePoint is one calendar month on the revenue trend chart.
type RevenuePoint struct {
	Label   string
	Year    int
	Month   time.Month
	Revenue Money
	Orders  int64
}

// TopProduct ranks a product by its sales counter. Revenue approximates the
// historical take as current price times units, accepted as an estimate since
// prices can change after a sale.
type TopProduct struct {
	ProductID string
	Title     string
	Image     *string
	Price     Money
	UnitsSold int64
	Revenue   Money
}

// GenderShare is one slice of the units-sold-by-gender breakdown.
type GenderShare struct {
	Gender string
	Units  int64
	Pct    float64
}
