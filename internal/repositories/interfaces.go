package repositories

import (
	"context"
	"time"

	domain "github.com/loomline/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository persists catalog products and exposes the read/aggregate
// helpers the order builder and the dashboard depend on.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs resolves a batch of product ids in one pass. Missing ids are
	// simply absent from the returned map; the caller decides whether that is
	// an error.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	SetInStock(ctx context.Context, productID string, inStock bool) (domain.Product, error)
	CountByType(ctx context.Context, productTypeID string) (int64, error)

	Stats(ctx context.Context) (ProductStatCounts, error)
	TopBySales(ctx context.Context, limit int) ([]domain.Product, error)
	OutOfStockBySales(ctx context.Context, limit int) ([]domain.Product, error)
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	ProductTypeID string
	GenderID      string
	InStock       *bool
	IsNew         *bool
	IsSale        *bool
	Limit         int
}

// ProductStatCounts carries the product KPI counters for the dashboard.
type ProductStatCounts struct {
	Total      int64
	InStock    int64
	OutOfStock int64
	NewArrival int64
	OnSale     int64
}

// TaxonomyRepository persists the Gender -> ProductType hierarchy.
type TaxonomyRepository interface {
	ListGenders(ctx context.Context) ([]domain.Gender, error)
	FindGender(ctx context.Context, genderID string) (domain.Gender, error)
	DeleteGender(ctx context.Context, genderID string) error
	ListProductTypes(ctx context.Context) ([]domain.ProductType, error)
	FindProductType(ctx context.Context, productTypeID string) (domain.ProductType, error)
	DeleteProductType(ctx context.Context, productTypeID string) error
	CountProductTypes(ctx context.Context, genderID string) (int64, error)
}

// OrderCommit bundles everything persisted by one atomic checkout commit:
// the fully built order aggregate and the per-product sales-counter
// increments. Either all of it lands or none of it does.
type OrderCommit struct {
	Order           domain.Order
	SalesIncrements map[string]int64
}

// OrderRepository persists order aggregates. Items live inside the order
// record, so deleting an order removes its items with it.
type OrderRepository interface {
	// Create commits the order, its items, the order-number uniqueness
	// reservation and the sales-counter increments in a single transaction.
	// It re-checks product existence and stock inside the transaction and
	// fails the whole commit on violation.
	Create(ctx context.Context, commit OrderCommit) error
	// Mutate re-reads the order inside a transaction, applies fn to the
	// fresh copy and writes the result back. Concurrent updates serialize
	// instead of overwriting each other's fields. Errors returned by fn
	// abort the write and surface unchanged.
	Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error)
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)

	// Aggregate readers used by the analytics service. A zero Window means
	// "lifetime". Revenue sums exclude cancelled orders when the query says
	// so; counts never exclude by status unless one is given explicitly.
	SumTotals(ctx context.Context, q OrderAggregateQuery) (domain.Money, error)
	Count(ctx context.Context, q OrderAggregateQuery) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error)
	DistinctCustomerPhones(ctx context.Context, window TimeWindow) (int64, error)
	// UnitsByProduct sums ordered item quantities per product id across all
	// non-cancelled orders.
	UnitsByProduct(ctx context.Context) (map[string]int64, error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Search        string
	Limit         int
}

// TimeWindow is a half-open interval [From, To). Zero bounds are unbounded.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// IsZero reports whether the window has no bounds at all.
func (w TimeWindow) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls within the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// OrderAggregateQuery filters order aggregates by window and status.
type OrderAggregateQuery struct {
	Window           TimeWindow
	Status           domain.OrderStatus
	ExcludeCancelled bool
}
