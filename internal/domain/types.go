package domain

import (
	"time"
)

// Gender is the top level of the catalog taxonomy (Men, Women, Kids, Unisex).
type Gender struct {
	ID   string
	Name string
	Slug string
}

// ProductType is the second taxonomy level (Jeans, Shoes, T-Shirts, ...)
// and always belongs to exactly one Gender.
type ProductType struct {
	ID       string
	Name     string
	Slug     string
	GenderID string
}

// Product is a sellable catalog entry. Price fields are minor currency units
// (cents). SalesCount only ever grows, and only through committed orders.
type Product struct {
	ID            string
	Title         string
	Description   string
	Price         Money
	OriginalPrice *Money
	InStock       bool
	IsNew         bool
	IsSale        bool
	SalesCount    int64
	Sizes         []string
	Colors        []string
	Images        []string
	ProductTypeID string
	// GenderID is denormalised from the product type so listings and
	// reports can filter without a taxonomy lookup.
	GenderID  string
	CreatedAt time.Time
}

// MainImage returns the first product image, if any.
func (p Product) MainImage() *string {
	if len(p.Images) == 0 {
		return nil
	}
	img := p.Images[0]
	return &img
}

// OrderStatus enumerates fulfillment states for an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every valid order status in display order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ValidOrderStatus reports whether s is one of the six order statuses.
func ValidOrderStatus(s OrderStatus) bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// PaymentStatus enumerates payment states, independent of OrderStatus.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentStatuses lists every valid payment status.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// ValidPaymentStatus reports whether s is one of the four payment statuses.
func ValidPaymentStatus(s PaymentStatus) bool {
	for _, v := range PaymentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Order is the immutable checkout record plus its mutable lifecycle fields.
// Items are created together with the header and deleted with it; they are
// never edited afterwards. Total == Subtotal + ShippingCost always holds.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerName  string
	CustomerPhone string
	AddressLine1  string
	City          string
	Latitude      *float64
	Longitude     *float64
	Subtotal      Money
	ShippingCost  Money
	Total         Money
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeliveredAt   *time.Time
}

// ItemCount returns the total number of units across the order's items.
func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// HasGPS reports whether both coordinates are present.
func (o Order) HasGPS() bool {
	return o.Latitude != nil && o.Longitude != nil
}

// OrderItem is a line on an order. ProductTitle, ProductImage and Price are
// frozen snapshots of the product at purchase time; later product edits do
// not affect them. Subtotal == Price * Quantity.
type OrderItem struct {
	ID           string
	ProductID    string
	ProductTitle string
	ProductImage *string
	Price        Money
	Size         *string
	Color        *string
	Quantity     int
	Subtotal     Money
}
