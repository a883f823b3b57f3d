package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/loomline/api/internal/domain"
	pfirestore "github.com/loomline/api/internal/platform/firestore"
	"github.com/loomline/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"

	// searchScanLimit caps the number of orders pulled for an in-memory
	// search pass.
	searchScanLimit = 500
)

type orderItemDocument struct {
	ID            string  `firestore:"id"`
	ProductID     string  `firestore:"productId"`
	ProductTitle  string  `firestore:"productTitle"`
	ProductImage  *string `firestore:"productImage,omitempty"`
	PriceMinor    int64   `firestore:"priceMinor"`
	Size          *string `firestore:"size,omitempty"`
	Color         *string `firestore:"color,omitempty"`
	Quantity      int     `firestore:"quantity"`
	SubtotalMinor int64   `firestore:"subtotalMinor"`
}

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	CustomerName  string              `firestore:"customerName"`
	CustomerPhone string              `firestore:"customerPhone"`
	AddressLine1  string              `firestore:"addressLine1"`
	City          string              `firestore:"city"`
	Latitude      *float64            `firestore:"latitude,omitempty"`
	Longitude     *float64            `firestore:"longitude,omitempty"`
	SubtotalMinor int64               `firestore:"subtotalMinor"`
	ShippingMinor int64               `firestore:"shippingMinor"`
	TotalMinor    int64               `firestore:"totalMinor"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	Items         []orderItemDocument `firestore:"items"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	DeliveredAt   *time.Time          `firestore:"deliveredAt,omitempty"`
}

// orderNumberReservation is keyed by the order number itself; creating it
// inside the checkout transaction enforces number uniqueness.
type orderNumberReservation struct {
	OrderID    string    `firestore:"orderId"`
	ReservedAt time.Time `firestore:"reservedAt"`
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ID:           item.ID,
			ProductID:    item.ProductID,
			ProductTitle: item.ProductTitle,
			ProductImage: item.ProductImage,
			Price:        domain.Money(item.PriceMinor),
			Size:         item.Size,
			Color:        item.Color,
			Quantity:     item.Quantity,
			Subtotal:     domain.Money(item.SubtotalMinor),
		})
	}
	return domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		CustomerName:  d.CustomerName,
		CustomerPhone: d.CustomerPhone,
		AddressLine1:  d.AddressLine1,
		City:          d.City,
		Latitude:      d.Latitude,
		Longitude:     d.Longitude,
		Subtotal:      domain.Money(d.SubtotalMinor),
		ShippingCost:  domain.Money(d.ShippingMinor),
		Total:         domain.Money(d.TotalMinor),
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		Items:         items,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		DeliveredAt:   d.DeliveredAt,
	}
}

func orderToDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:            item.ID,
			ProductID:     item.ProductID,
			ProductTitle:  item.ProductTitle,
			ProductImage:  item.ProductImage,
			PriceMinor:    int64(item.Price),
			Size:          item.Size,
			Color:         item.Color,
			Quantity:      item.Quantity,
			SubtotalMinor: int64(item.Subtotal),
		})
	}
	return orderDocument{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		AddressLine1:  order.AddressLine1,
		City:          order.City,
		Latitude:      order.Latitude,
		Longitude:     order.Longitude,
		SubtotalMinor: int64(order.Subtotal),
		ShippingMinor: int64(order.ShippingCost),
		TotalMinor:    int64(order.Total),
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Items:         items,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		DeliveredAt:   order.DeliveredAt,
	}
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewCollection[orderDocument](provider, ordersCollection)
	return &OrderRepository{
		provider: provider,
		orders:   base,
	}, nil
}

// Create commits the order, its number reservation and the per-product sales
// counter increments in one transaction. Product existence and stock are
// re-checked inside the transaction so a concurrent stock toggle cannot slip
// past the service's earlier read.
func (r *OrderRepository) Create(ctx context.Context, commit repositories.OrderCommit) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	order := commit.Order
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	orderRef := client.Collection(ordersCollection).Doc(order.ID)
	numberRef := client.Collection(orderNumbersCollection).Doc(order.OrderNumber)

	productIDs := make([]string, 0, len(commit.SalesIncrements))
	for productID := range commit.SalesIncrements {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// All reads must happen before any write. The number reservation is
		// read here too: tx.Create only buffers its write, so an
		// AlreadyExists from a concurrent commit would otherwise surface
		// only when the transaction commits and skip the caller's
		// retry-with-fresh-number path.
		if _, err := tx.Get(numberRef); err == nil {
			return repositories.NewOrderCommitError(
				repositories.OrderCommitErrorNumberTaken,
				fmt.Sprintf("order number %s already exists", order.OrderNumber),
				nil,
			)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		for _, productID := range productIDs {
			productRef := client.Collection(productsCollection).Doc(productID)
			snapshot, err := tx.Get(productRef)
			if status.Code(err) == codes.NotFound {
				return repositories.NewProductNotFoundError(productID)
			}
			if err != nil {
				return err
			}

			var product productDocument
			if err := snapshot.DataTo(&product); err != nil {
				return fmt.Errorf("firestore products decode %s: %w", productID, err)
			}
			if !product.InStock {
				return repositories.NewOutOfStockError(productID, product.Title)
			}
		}

		if err := tx.Create(numberRef, orderNumberReservation{
			OrderID:    order.ID,
			ReservedAt: order.CreatedAt,
		}); err != nil {
			return err
		}

		if err := tx.Create(orderRef, orderToDocument(order)); err != nil {
			return err
		}

		for _, productID := range productIDs {
			increment := commit.SalesIncrements[productID]
			if increment <= 0 {
				continue
			}
			productRef := client.Collection(productsCollection).Doc(productID)
			if err := tx.Update(productRef, []firestore.Update{
				{Path: "salesCount", Value: firestore.Increment(increment)},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var commitErr *repositories.OrderCommitError
		if errors.As(err, &commitErr) {
			return commitErr
		}
		// A racing commit can still win between our reservation read and the
		// commit itself, in which case the buffered tx.Create fails at commit
		// time with AlreadyExists.
		if status.Code(err) == codes.AlreadyExists {
			return repositories.NewOrderCommitError(
				repositories.OrderCommitErrorNumberTaken,
				fmt.Sprintf("order number %s already exists", order.OrderNumber),
				err,
			)
		}
		return pfirestore.WrapError("orders.create", err)
	}
	return nil
}

// Mutate applies fn to a freshly read copy of the order inside a transaction
// and writes the result back. Two concurrent mutations serialize, so a
// payment-status write cannot resurrect a status or delivered timestamp it
// read before a parallel transition landed. Errors from fn abort the
// transaction and are returned unchanged.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn func(order *domain.Order) error) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	ref := client.Collection(ordersCollection).Doc(orderID)

	var (
		updated domain.Order
		fnErr   error
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}

		order := doc.toDomain(orderID)
		if err := fn(&order); err != nil {
			fnErr = err
			return err
		}
		updated = order
		return tx.Set(ref, orderToDocument(order))
	})
	if err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return domain.Order{}, fnErr
		}
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return updated, nil
}

// Delete removes the order and releases its number reservation.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	orderRef := client.Collection(ordersCollection).Doc(orderID)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}

		if err := tx.Delete(orderRef); err != nil {
			return err
		}
		if doc.OrderNumber != "" {
			numberRef := client.Collection(orderNumbersCollection).Doc(doc.OrderNumber)
			if err := tx.Delete(numberRef); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber fetches the order carrying the given order number.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderNumber", "==", orderNumber).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, notFoundError("orders.findByNumber", fmt.Sprintf("order %s not found", orderNumber))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns orders matching the filter, newest first. When a search term
// is given the candidate set is scanned in memory, matching the order number,
// customer name, phone, or city case-insensitively.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if filter.PaymentStatus != "" {
			q = q.Where("paymentStatus", "==", string(filter.PaymentStatus))
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if search != "" {
			q = q.Limit(searchScanLimit)
		} else if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order := doc.Data.toDomain(doc.ID)
		if search != "" && !orderMatchesSearch(order, search) {
			continue
		}
		orders = append(orders, order)
		if search != "" && filter.Limit > 0 && len(orders) >= filter.Limit {
			break
		}
	}
	return orders, nil
}

// ListRecent returns the most recent orders.
func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.List(ctx, repositories.OrderListFilter{Limit: limit})
}

// SumTotals sums order totals matching the query.
func (r *OrderRepository) SumTotals(ctx context.Context, q repositories.OrderAggregateQuery) (domain.Money, error) {
	var total int64
	err := r.scanAggregates(ctx, q, "orders.sumTotals", func(doc orderDocument) {
		total += doc.TotalMinor
	})
	if err != nil {
		return 0, err
	}
	return domain.Money(total), nil
}

// Count counts orders matching the query.
func (r *OrderRepository) Count(ctx context.Context, q repositories.OrderAggregateQuery) (int64, error) {
	var count int64
	err := r.scanAggregates(ctx, q, "orders.count", func(orderDocument) {
		count++
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus counts all orders grouped by status.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int64, error) {
	counts := make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))
	err := r.scanAggregates(ctx, repositories.OrderAggregateQuery{}, "orders.countByStatus", func(doc orderDocument) {
		counts[domain.OrderStatus(doc.Status)]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// DistinctCustomerPhones counts unique customer phone numbers in the window.
func (r *OrderRepository) DistinctCustomerPhones(ctx context.Context, window repositories.TimeWindow) (int64, error) {
	phones := make(map[string]struct{})
	err := r.scanAggregates(ctx, repositories.OrderAggregateQuery{Window: window}, "orders.distinctPhones", func(doc orderDocument) {
		phone := strings.TrimSpace(doc.CustomerPhone)
		if phone != "" {
			phones[phone] = struct{}{}
		}
	})
	if err != nil {
		return 0, err
	}
	return int64(len(phones)), nil
}

// UnitsByProduct sums ordered quantities per product across all non-cancelled orders.
func (r *OrderRepository) UnitsByProduct(ctx context.Context) (map[string]int64, error) {
	units := make(map[string]int64)
	err := r.scanAggregates(ctx, repositories.OrderAggregateQuery{ExcludeCancelled: true}, "orders.unitsByProduct", func(doc orderDocument) {
		for _, item := range doc.Items {
			units[item.ProductID] += int64(item.Quantity)
		}
	})
	if err != nil {
		return nil, err
	}
	return units, nil
}

// scanAggregates streams order documents matching the query. The window is
// applied server side; status filtering happens in memory because Firestore
// cannot combine a createdAt range with a status inequality.
func (r *OrderRepository) scanAggregates(ctx context.Context, q repositories.OrderAggregateQuery, op string, visit func(orderDocument)) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	query := client.Collection(ordersCollection).Query
	if !q.Window.From.IsZero() {
		query = query.Where("createdAt", ">=", q.Window.From)
	}
	if !q.Window.To.IsZero() {
		query = query.Where("createdAt", "<", q.Window.To)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return pfirestore.WrapError(op, err)
		}

		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return pfirestore.WrapError(op, err)
		}
		if q.Status != "" && doc.Status != string(q.Status) {
			continue
		}
		if q.ExcludeCancelled && doc.Status == string(domain.OrderStatusCancelled) {
			continue
		}
		visit(doc)
	}
	return nil
}

func orderMatchesSearch(order domain.Order, search string) bool {
	for _, field := range []string{
		order.OrderNumber,
		order.CustomerName,
		order.CustomerPhone,
		order.City,
	} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}
