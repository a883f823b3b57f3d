package services

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"
	orderEventDeleted        = "order.deleted"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberAttempts = 5

	defaultOrderListLimit = 50
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a business-rule violation or duplicate.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderProtected indicates the deletion guard refused the operation.
	ErrOrderProtected = fmt.Errorf("%w: delivered or paid orders cannot be deleted", ErrOrderConflict)

	errOrderNumberExhausted = errors.New("order: could not allocate a unique order number")
)

// ShippingPolicy captures the flat-rate-with-free-threshold shipping rule.
// Amounts are minor currency units.
type ShippingPolicy struct {
	FreeFrom domain.Money
	Flat     domain.Money
}

// Cost returns the shipping charge for a given order subtotal. The threshold
// is inclusive: a subtotal exactly at FreeFrom ships free.
func (p ShippingPolicy) Cost(subtotal domain.Money) domain.Money {
	if subtotal >= p.FreeFrom {
		return 0
	}
	return p.Flat
}

func defaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{FreeFrom: 10000, Flat: 1000}
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Products     repositories.ProductRepository
	Events       OrderEventPublisher
	Clock        func() time.Time
	IDGenerator  func() string
	NumberSuffix func() string
	Location     *time.Location
	Shipping     ShippingPolicy
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	events     OrderEventPublisher
	clock      func() time.Time
	newID      func() string
	newSuffix  func() string
	location   *time.Location
	shipping   ShippingPolicy
	sanitizer  *bluemonday.Policy
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	suffix := deps.NumberSuffix
	if suffix == nil {
		suffix = randomOrderSuffix
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	shipping := deps.Shipping
	if shipping.FreeFrom == 0 && shipping.Flat == 0 {
		shipping = defaultShippingPolicy()
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		newSuffix: suffix,
		location:  location,
		shipping:  shipping,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	name := s.cleanText(cmd.CustomerName)
	phone := s.cleanText(cmd.CustomerPhone)
	address := s.cleanText(cmd.AddressLine1)
	city := s.cleanText(cmd.City)

	switch {
	case name == "":
		return Order{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	case phone == "":
		return Order{}, fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	case address == "":
		return Order{}, fmt.Errorf("%w: address is required", ErrOrderInvalidInput)
	case city == "":
		return Order{}, fmt.Errorf("%w: city is required", ErrOrderInvalidInput)
	case len(cmd.Items) == 0:
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}

	for _, line := range cmd.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: item product id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item quantity must be a positive integer", ErrOrderInvalidInput)
		}
	}

	productIDs := make([]string, 0, len(cmd.Items))
	for _, line := range cmd.Items {
		productIDs = append(productIDs, strings.TrimSpace(line.ProductID))
	}

	products, err := s.products.FindByIDs(ctx, productIDs)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	increments := make(map[string]int64, len(cmd.Items))
	var subtotal domain.Money

	for _, line := range cmd.Items {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := products[productID]
		if !ok {
			return Order{}, repositories.NewProductNotFoundError(productID)
		}
		if !product.InStock {
			return Order{}, repositories.NewOutOfStockError(productID, product.Title)
		}

		lineSubtotal := product.Price.Mul(line.Quantity)
		items = append(items, OrderItem{
			ID:           orderItemIDPrefix + s.newID(),
			ProductID:    productID,
			ProductTitle: product.Title,
			ProductImage: product.MainImage(),
			Price:        product.Price,
			Size:         optionalText(line.Size),
			Color:        optionalText(line.Color),
			Quantity:     line.Quantity,
			Subtotal:     lineSubtotal,
		})
		subtotal += lineSubtotal
		increments[productID] += int64(line.Quantity)
	}

	now := s.now()
	shippingCost := s.shipping.Cost(subtotal)

	order := Order{
		ID:            orderIDPrefix + s.newID(),
		CustomerName:  name,
		CustomerPhone: phone,
		AddressLine1:  address,
		City:          city,
		Latitude:      normaliseCoordinate(cmd.Latitude, -90, 90),
		Longitude:     normaliseCoordinate(cmd.Longitude, -180, 180),
		Subtotal:      subtotal,
		ShippingCost:  shippingCost,
		Total:         subtotal + shippingCost,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.commitWithFreshNumbers(ctx, &order, increments, now); err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:         orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalMinor:    int64(order.Total),
		OccurredAt:    now,
	})

	s.logger(ctx, "order.created", map[string]any{
		"order":  order.ID,
		"number": order.OrderNumber,
		"total":  int64(order.Total),
		"items":  len(order.Items),
	})

	return order, nil
}

// commitWithFreshNumbers retries the transactional commit with a new random
// suffix whenever the store reports the order number already taken.
func (s *orderService) commitWithFreshNumbers(ctx context.Context, order *Order, increments map[string]int64, now time.Time) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber = s.formatOrderNumber(now)

		err := s.orders.Create(ctx, repositories.OrderCommit{
			Order:           *order,
			SalesIncrements: increments,
		})
		if err == nil {
			return nil
		}

		var commitErr *repositories.OrderCommitError
		if errors.As(err, &commitErr) && commitErr.Code == repositories.OrderCommitErrorNumberTaken {
			s.logger(ctx, "order.number.collision", map[string]any{
				"number":  order.OrderNumber,
				"attempt": attempt + 1,
			})
			continue
		}
		if errors.As(err, &commitErr) {
			return commitErr
		}
		return s.mapRepositoryError(err)
	}
	return errOrderNumberExhausted
}

func (s *orderService) formatOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.In(s.location).Format("20060102"), s.newSuffix())
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	if filter.Status != "" && !domain.ValidOrderStatus(filter.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, filter.Status)
	}
	if filter.PaymentStatus != "" && !domain.ValidPaymentStatus(filter.PaymentStatus) {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, filter.PaymentStatus)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultOrderListLimit
	}
	filter.Search = strings.TrimSpace(filter.Search)

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (Order, error) {
	if !domain.ValidOrderStatus(cmd.Status) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.now()
	order, err := s.orders.Mutate(ctx, cmd.OrderID, func(order *domain.Order) error {
		applyStatus(order, cmd.Status, now)
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:         orderEventStatusChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalMinor:    int64(order.Total),
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error) {
	if !domain.ValidPaymentStatus(cmd.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}

	now := s.now()
	order, err := s.orders.Mutate(ctx, cmd.OrderID, func(order *domain.Order) error {
		order.PaymentStatus = cmd.PaymentStatus
		order.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEventMessage{
		Event:         orderEventPaymentChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalMinor:    int64(order.Total),
		OccurredAt:    now,
	})

	return order, nil
}

func (s *orderService) BulkSetStatus(ctx context.Context, cmd BulkSetStatusCommand) (int, error) {
	if !domain.ValidOrderStatus(cmd.Status) {
		return 0, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	updated := 0
	for _, orderID := range cmd.OrderIDs {
		orderID = strings.TrimSpace(orderID)
		if orderID == "" {
			continue
		}

		now := s.now()
		order, err := s.orders.Mutate(ctx, orderID, func(order *domain.Order) error {
			applyStatus(order, cmd.Status, now)
			return nil
		})
		if err != nil {
			mapped := s.mapRepositoryError(err)
			if errors.Is(mapped, ErrOrderNotFound) {
				continue
			}
			return updated, mapped
		}
		updated++

		s.publishEvent(ctx, OrderEventMessage{
			Event:         orderEventStatusChanged,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			Status:        string(order.Status),
			PaymentStatus: string(order.PaymentStatus),
			TotalMinor:    int64(order.Total),
			OccurredAt:    now,
		})
	}

	return updated, nil
}

func (s *orderService) UpdateDetails(ctx context.Context, cmd UpdateOrderDetailsCommand) (Order, error) {
	order, err := s.orders.Mutate(ctx, cmd.OrderID, func(order *domain.Order) error {
		if cmd.CustomerName != nil {
			name := s.cleanText(*cmd.CustomerName)
			if name == "" {
				return fmt.Errorf("%w: customer name cannot be blank", ErrOrderInvalidInput)
			}
			order.CustomerName = name
		}
		if cmd.CustomerPhone != nil {
			phone := s.cleanText(*cmd.CustomerPhone)
			if phone == "" {
				return fmt.Errorf("%w: customer phone cannot be blank", ErrOrderInvalidInput)
			}
			order.CustomerPhone = phone
		}
		if cmd.AddressLine1 != nil {
			address := s.cleanText(*cmd.AddressLine1)
			if address == "" {
				return fmt.Errorf("%w: address cannot be blank", ErrOrderInvalidInput)
			}
			order.AddressLine1 = address
		}
		if cmd.City != nil {
			city := s.cleanText(*cmd.City)
			if city == "" {
				return fmt.Errorf("%w: city cannot be blank", ErrOrderInvalidInput)
			}
			order.City = city
		}
		if cmd.Latitude != nil {
			order.Latitude = normaliseCoordinate(cmd.Latitude, -90, 90)
		}
		if cmd.Longitude != nil {
			order.Longitude = normaliseCoordinate(cmd.Longitude, -180, 180)
		}
		if cmd.ShippingCost != nil {
			if *cmd.ShippingCost < 0 {
				return fmt.Errorf("%w: shipping cost cannot be negative", ErrOrderInvalidInput)
			}
			order.ShippingCost = domain.Money(*cmd.ShippingCost)
			order.Total = order.Subtotal + order.ShippingCost
		}

		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusDelivered || order.PaymentStatus == domain.PaymentStatusPaid {
		return ErrOrderProtected
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		return s.mapRepositoryError(err)
	}

	now := s.now()
	s.publishEvent(ctx, OrderEventMessage{
		Event:       orderEventDeleted,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TotalMinor:  int64(order.Total),
		OccurredAt:  now,
	})

	return nil
}

// applyStatus stamps the target status. The delivered timestamp is written
// once, the first time the order reaches delivered, and never overwritten.
func applyStatus(order *Order, status domain.OrderStatus, now time.Time) {
	order.Status = status
	order.UpdatedAt = now
	if status == domain.OrderStatusDelivered && order.DeliveredAt == nil {
		stamp := now
		order.DeliveredAt = &stamp
	}
}

func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"event": message.Event,
			"order": message.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) cleanText(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// normaliseCoordinate clamps nothing: any value outside [min, max], or a
// non-finite number, is dropped to unset rather than rejecting the order.
func normaliseCoordinate(value *float64, min, max float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v < min || v > max {
		return nil
	}
	return &v
}

func randomOrderSuffix() string {
	buf := make([]byte, 6)
	if _, err := crand.Read(buf); err != nil {
		id := ulid.Make().String()
		return id[len(id)-6:]
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return string(buf)
}
