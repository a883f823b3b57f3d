package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newParams  *stripe.PaymentIntentParams
	newResult  *stripe.PaymentIntent
	newErr     error
	getID      string
	getResult  *stripe.PaymentIntent
	getErr     error
	newCalls   int
	getCalls   int
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.newCalls++
	s.newParams = params
	return s.newResult, s.newErr
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.getCalls++
	s.getID = id
	return s.getResult, s.getErr
}

type stubRefundAPI struct {
	params *stripe.RefundParams
	err    error
	calls  int
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	s.calls++
	s.params = params
	return &stripe.Refund{ID: "re_1"}, s.err
}

func newTestProvider(t *testing.T, intents *stubIntentAPI, refunds *stubRefundAPI) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Clock: func() time.Time {
			return time.Date(2025, time.March, 12, 9, 0, 0, 0, time.UTC)
		},
		Clients: &stripeClients{intents: intents, refunds: refunds},
	})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	return provider
}

func TestCreateIntentSetsMetadataAndIdempotencyKey(t *testing.T) {
	intents := &stubIntentAPI{
		newResult: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
			Amount:       4500,
		},
	}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:        "order-1",
		OrderNumber:    "ORD-20250312-AB12CD",
		Amount:         4500,
		Currency:       "USD",
		IdempotencyKey: "order-1-intent",
	})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}
	if intent.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", intent.Status)
	}

	params := intents.newParams
	if params == nil {
		t.Fatal("expected intent params to be captured")
	}
	if got := stripe.Int64Value(params.Amount); got != 4500 {
		t.Fatalf("expected amount 4500, got %d", got)
	}
	if got := stripe.StringValue(params.Currency); got != "usd" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if params.Metadata["orderId"] != "order-1" {
		t.Fatalf("expected orderId metadata, got %v", params.Metadata)
	}
	if params.Metadata["orderNumber"] != "ORD-20250312-AB12CD" {
		t.Fatalf("expected orderNumber metadata, got %v", params.Metadata)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "order-1-intent" {
		t.Fatal("expected idempotency key to be set")
	}
}

func TestCreateIntentRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 0, Currency: "usd"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestRefundLooksUpPaymentAfterwards(t *testing.T) {
	intents := &stubIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:       "pi_123",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   4500,
			Currency: stripe.CurrencyUSD,
			LatestCharge: &stripe.Charge{
				Paid:           true,
				Amount:         4500,
				AmountRefunded: 4500,
				Refunded:       true,
				Created:        time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC).Unix(),
			},
		},
	}
	refunds := &stubRefundAPI{}
	provider := newTestProvider(t, intents, refunds)

	amount := int64(4500)
	details, err := provider.Refund(context.Background(), RefundRequest{
		IntentID:       "pi_123",
		Amount:         &amount,
		Reason:         "requested_by_customer",
		IdempotencyKey: "order-1-refund",
	})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}
	if refunds.calls != 1 {
		t.Fatalf("expected one refund call, got %d", refunds.calls)
	}
	if got := stripe.StringValue(refunds.params.PaymentIntent); got != "pi_123" {
		t.Fatalf("expected refund against pi_123, got %q", got)
	}
	if got := stripe.StringValue(refunds.params.Reason); got != "requested_by_customer" {
		t.Fatalf("unexpected refund reason %q", got)
	}
	if details.Status != StatusRefunded {
		t.Fatalf("expected refunded status, got %q", details.Status)
	}
	if details.RefundedAt == nil {
		t.Fatal("expected refundedAt to be populated")
	}
	if details.Currency != "USD" {
		t.Fatalf("expected USD currency, got %q", details.Currency)
	}
}

func TestRefundPropagatesAPIError(t *testing.T) {
	refunds := &stubRefundAPI{err: errors.New("boom")}
	provider := newTestProvider(t, &stubIntentAPI{}, refunds)

	if _, err := provider.Refund(context.Background(), RefundRequest{IntentID: "pi_123"}); err == nil {
		t.Fatal("expected refund error")
	}
}

func TestLookupPaymentMapsSucceededIntent(t *testing.T) {
	intents := &stubIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:       "pi_456",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   12000,
			Currency: stripe.CurrencyUSD,
			LatestCharge: &stripe.Charge{
				Paid:    true,
				Amount:  12000,
				Created: time.Date(2025, time.March, 12, 8, 30, 0, 0, time.UTC).Unix(),
			},
		},
	}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	details, err := provider.LookupPayment(context.Background(), "pi_456")
	if err != nil {
		t.Fatalf("LookupPayment returned error: %v", err)
	}
	if intents.getID != "pi_456" {
		t.Fatalf("expected lookup for pi_456, got %q", intents.getID)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %q", details.Status)
	}
	if !details.Captured || details.CapturedAt == nil {
		t.Fatalf("expected captured payment, got %+v", details)
	}
}

func TestLookupPaymentMapsCanceledToFailed(t *testing.T) {
	intents := &stubIntentAPI{
		getResult: &stripe.PaymentIntent{
			ID:     "pi_789",
			Status: stripe.PaymentIntentStatusCanceled,
		},
	}
	provider := newTestProvider(t, intents, &stubRefundAPI{})

	details, err := provider.LookupPayment(context.Background(), "pi_789")
	if err != nil {
		t.Fatalf("LookupPayment returned error: %v", err)
	}
	if details.Status != StatusFailed {
		t.Fatalf("expected failed status, got %q", details.Status)
	}
}

func TestParseWebhookRejectsInvalidSignature(t *testing.T) {
	provider := newTestProvider(t, &stubIntentAPI{}, &stubRefundAPI{})

	if _, err := provider.ParseWebhook([]byte(`{}`), "t=1,v1=bogus"); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}
