package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/loomline/api/internal/domain"
	"github.com/loomline/api/internal/payments"
)

type stubPaymentProvider struct {
	requests []payments.IntentRequest
	intent   payments.Intent
	err      error
}

func (s *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error) {
	s.requests = append(s.requests, req)
	return s.intent, s.err
}

func (s *stubPaymentProvider) Refund(ctx context.Context, req payments.RefundRequest) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

func (s *stubPaymentProvider) LookupPayment(ctx context.Context, intentID string) (payments.PaymentDetails, error) {
	return payments.PaymentDetails{}, nil
}

type stubWebhookParser struct {
	event payments.WebhookEvent
	err   error
}

func (s *stubWebhookParser) ParseWebhook(payload []byte, signature string) (payments.WebhookEvent, error) {
	return s.event, s.err
}

func paymentTestOrderService(t *testing.T, stored *domain.Order) OrderService {
	t.Helper()
	orders := &stubOrderRepository{}
	orders.findByIDFn = func(ctx context.Context, id string) (domain.Order, error) {
		if stored != nil && stored.ID == id {
			return *stored, nil
		}
		return domain.Order{}, stubRepoError{notFound: true}
	}
	orders.saveFn = func(order domain.Order) {
		*stored = order
	}
	return newTestOrderService(t, orders, &stubProductRepository{products: testProducts()}, nil)
}

func TestCreateIntentCoversOrderTotal(t *testing.T) {
	stored := domain.Order{
		ID:            "ord_1",
		OrderNumber:   "ORD-20250312-AAAAAA",
		Total:         10995,
		PaymentStatus: domain.PaymentStatusPending,
	}
	provider := &stubPaymentProvider{intent: payments.Intent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       payments.StatusPending,
		ExpiresAt:    time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
	}}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   paymentTestOrderService(t, &stored),
		Provider: provider,
		Webhooks: &stubWebhookParser{},
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	intent, err := svc.CreateIntent(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.IntentID != "pi_1" || intent.Amount != 10995 {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("expected one provider call, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if req.Amount != 10995 || req.OrderNumber != "ORD-20250312-AAAAAA" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.IdempotencyKey != "ord_1-intent" {
		t.Fatalf("expected stable idempotency key, got %q", req.IdempotencyKey)
	}
}

func TestCreateIntentRejectsPaidOrder(t *testing.T) {
	stored := domain.Order{ID: "ord_1", PaymentStatus: domain.PaymentStatusPaid}
	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   paymentTestOrderService(t, &stored),
		Provider: &stubPaymentProvider{},
		Webhooks: &stubWebhookParser{},
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if _, err := svc.CreateIntent(context.Background(), "ord_1"); !errors.Is(err, ErrPaymentConflict) {
		t.Fatalf("expected ErrPaymentConflict, got %v", err)
	}
}

func TestHandleWebhookMarksOrderPaid(t *testing.T) {
	stored := domain.Order{ID: "ord_1", Status: domain.OrderStatusPending, PaymentStatus: domain.PaymentStatusPending}
	parser := &stubWebhookParser{event: payments.WebhookEvent{
		Type:    "payment_intent.succeeded",
		OrderID: "ord_1",
		Status:  payments.StatusSucceeded,
	}}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   paymentTestOrderService(t, &stored),
		Provider: &stubPaymentProvider{},
		Webhooks: parser,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	order, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid, got %q", order.PaymentStatus)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("fulfillment status must not change, got %q", order.Status)
	}
}

func TestHandleWebhookIgnoresNonTerminalEvents(t *testing.T) {
	stored := domain.Order{ID: "ord_1", PaymentStatus: domain.PaymentStatusPending}
	parser := &stubWebhookParser{event: payments.WebhookEvent{
		Type:    "payment_intent.created",
		OrderID: "ord_1",
		Status:  payments.StatusPending,
	}}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   paymentTestOrderService(t, &stored),
		Provider: &stubPaymentProvider{},
		Webhooks: parser,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	order, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("pending events must not change state, got %q", order.PaymentStatus)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	stored := domain.Order{ID: "ord_1"}
	parser := &stubWebhookParser{err: errors.New("bad signature")}

	svc, err := NewPaymentService(PaymentServiceDeps{
		Orders:   paymentTestOrderService(t, &stored),
		Provider: &stubPaymentProvider{},
		Webhooks: parser,
	})
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}

	if _, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "bad"); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
	}

	parser.err = nil
	parser.event = payments.WebhookEvent{Type: "payment_intent.succeeded", Status: payments.StatusSucceeded}
	if _, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected ErrPaymentInvalidInput for missing order id, got %v", err)
	}
}
