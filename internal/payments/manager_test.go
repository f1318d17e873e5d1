package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	intent PaymentIntent
	result CallbackResult
	err    error
}

func (s *stubProvider) CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error) {
	if s.err != nil {
		return PaymentIntent{}, s.err
	}
	return s.intent, nil
}

func (s *stubProvider) VerifyCallback(params map[string]string) (CallbackResult, error) {
	if s.err != nil {
		return CallbackResult{}, s.err
	}
	return s.result, nil
}

func TestManagerRoutesByGateway(t *testing.T) {
	momo := &stubProvider{intent: PaymentIntent{RedirectURL: "https://momo.example/pay"}}
	vnpay := &stubProvider{intent: PaymentIntent{RedirectURL: "https://vnpay.example/pay"}}

	manager, err := NewManager(map[string]Provider{"momo": momo, "VNPay": vnpay})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	intent, err := manager.CreatePayment(context.Background(), "momo", CreatePaymentRequest{PaymentID: "p1", Amount: 1000})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if intent.RedirectURL != "https://momo.example/pay" {
		t.Fatalf("routed to wrong provider: %q", intent.RedirectURL)
	}
	if intent.Gateway != "momo" {
		t.Fatalf("expected gateway stamped, got %q", intent.Gateway)
	}

	// Registration keys are case-insensitive.
	intent, err = manager.CreatePayment(context.Background(), "vnpay", CreatePaymentRequest{PaymentID: "p2", Amount: 1000})
	if err != nil {
		t.Fatalf("create payment vnpay: %v", err)
	}
	if intent.RedirectURL != "https://vnpay.example/pay" {
		t.Fatalf("routed to wrong provider: %q", intent.RedirectURL)
	}
}

func TestManagerUnsupportedGateway(t *testing.T) {
	manager, err := NewManager(map[string]Provider{"momo": &stubProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := manager.CreatePayment(context.Background(), "cod", CreatePaymentRequest{}); !errors.Is(err, ErrUnsupportedGateway) {
		t.Fatalf("expected unsupported gateway, got %v", err)
	}
	if _, err := manager.VerifyCallback("zalopay", nil); !errors.Is(err, ErrUnsupportedGateway) {
		t.Fatalf("expected unsupported gateway, got %v", err)
	}
}

func TestManagerVerifyCallbackStampsGateway(t *testing.T) {
	provider := &stubProvider{result: CallbackResult{PaymentID: "p1", Success: true}}
	manager, err := NewManager(map[string]Provider{"vnpay": provider})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	result, err := manager.VerifyCallback("vnpay", map[string]string{"vnp_TxnRef": "p1"})
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if result.Gateway != "vnpay" {
		t.Fatalf("expected gateway stamped, got %q", result.Gateway)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &stubProvider{}}); err == nil {
		t.Fatalf("expected error for blank key")
	}
	if _, err := NewManager(map[string]Provider{"momo": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
}
