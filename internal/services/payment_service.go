package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/payments"
)

const defaultPaymentCurrency = "usd"

var (
	// ErrPaymentInvalidInput signals a malformed payment request or webhook.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentConflict indicates the order is not in a payable state.
	ErrPaymentConflict = errors.New("payment: conflict")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders   OrderService
	Provider payments.Provider
	Webhooks payments.WebhookParser
	Currency string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders   OrderService
	provider payments.Provider
	webhooks payments.WebhookParser
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: payment provider is required")
	}
	if deps.Webhooks == nil {
		return nil, errors.New("payment service: webhook parser is required")
	}

	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultPaymentCurrency
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:   deps.Orders,
		provider: deps.Provider,
		webhooks: deps.Webhooks,
		currency: currency,
		logger:   logger,
	}, nil
}

// CreateIntent opens a PSP payment intent covering the order total.
func (s *paymentService) CreateIntent(ctx context.Context, orderID string) (PaymentIntent, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, err
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return PaymentIntent{}, fmt.Errorf("%w: order %s is already paid", ErrPaymentConflict, order.OrderNumber)
	}

	intent, err := s.provider.CreateIntent(ctx, payments.IntentRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         int64(order.Total),
		Currency:       s.currency,
		IdempotencyKey: order.ID + "-intent",
	})
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("payment: create intent: %w", err)
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"order":  order.ID,
		"intent": intent.ID,
		"amount": int64(order.Total),
	})

	return PaymentIntent{
		OrderID:      order.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.Total,
		Currency:     s.currency,
		ExpiresAt:    intent.ExpiresAt,
	}, nil
}

// HandleWebhook verifies a PSP notification and applies it to the order's
// payment status. Events that do not change payment state are acknowledged
// without touching the order.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (Order, error) {
	event, err := s.webhooks.ParseWebhook(payload, signature)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}
	if strings.TrimSpace(event.OrderID) == "" {
		return Order{}, fmt.Errorf("%w: webhook carries no order reference", ErrPaymentInvalidInput)
	}

	status, actionable := paymentStatusForEvent(event.Status)
	if !actionable {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
		})
		return s.orders.GetOrder(ctx, event.OrderID)
	}

	order, err := s.orders.SetPaymentStatus(ctx, SetPaymentStatusCommand{
		OrderID:       event.OrderID,
		PaymentStatus: status,
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "payment.webhook.applied", map[string]any{
		"type":   event.Type,
		"order":  order.ID,
		"status": string(status),
	})

	return order, nil
}

func paymentStatusForEvent(status payments.Status) (domain.PaymentStatus, bool) {
	switch status {
	case payments.StatusSucceeded:
		return domain.PaymentStatusPaid, true
	case payments.StatusFailed:
		return domain.PaymentStatusFailed, true
	case payments.StatusRefunded:
		return domain.PaymentStatusRefunded, true
	default:
		return domain.PaymentStatusPending, false
	}
}
