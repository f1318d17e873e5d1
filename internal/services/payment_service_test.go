package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/payments"
	"github.com/vietcart/api/internal/repositories"
)

type stubCallbackVerifier struct {
	verifyFn func(gateway string, params map[string]string) (payments.CallbackResult, error)
}

func (s *stubCallbackVerifier) VerifyCallback(gateway string, params map[string]string) (payments.CallbackResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(gateway, params)
	}
	return payments.CallbackResult{}, errors.New("verify not stubbed")
}

func newPaymentServiceForTest(t *testing.T, repo *stubPaymentRepo, verifier *stubCallbackVerifier, events *capturePaymentEvents) PaymentService {
	t.Helper()
	deps := PaymentServiceDeps{
		Payments: repo,
		Verifier: verifier,
		Clock:    func() time.Time { return time.Date(2025, 3, 12, 16, 45, 0, 0, time.UTC) },
	}
	if events != nil {
		deps.Events = events
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestHandleCallbackSuccessAppliesVerdict(t *testing.T) {
	var gotReq repositories.PaymentResultRequest
	repo := &stubPaymentRepo{
		applyResultFn: func(_ context.Context, req repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
			gotReq = req
			return repositories.PaymentResultOutcome{
				Payment: domain.Payment{ID: req.PaymentID, OrderID: "ord_1", Status: req.Status, TransactionRef: req.TransactionRef},
				Order:   domain.Order{ID: "ord_1", Status: domain.OrderStatusPending},
			}, nil
		},
	}
	verifier := &stubCallbackVerifier{
		verifyFn: func(gateway string, params map[string]string) (payments.CallbackResult, error) {
			if gateway != "momo" {
				t.Fatalf("expected momo gateway, got %s", gateway)
			}
			return payments.CallbackResult{Gateway: gateway, PaymentID: "pay_1", Success: true, TransactionRef: "2547839"}, nil
		},
	}
	events := &capturePaymentEvents{}
	svc := newPaymentServiceForTest(t, repo, verifier, events)

	outcome, err := svc.HandleCallback(context.Background(), CallbackPayload{
		MoMo: map[string]string{"orderId": "pay_1", "resultCode": "0"},
	})
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if !outcome.Success || !outcome.IsPaymentSuccess {
		t.Fatalf("expected successful outcome, got %+v", outcome)
	}
	if outcome.Payment == nil || outcome.Payment.Status != domain.PaymentStatusSuccess {
		t.Fatalf("expected success payment, got %+v", outcome.Payment)
	}
	if gotReq.Status != domain.PaymentStatusSuccess || gotReq.TransactionRef != "2547839" {
		t.Fatalf("unexpected apply request %+v", gotReq)
	}
	if len(events.events) != 1 || events.events[0].Type != "payment.status.changed" {
		t.Fatalf("expected payment event, got %+v", events.events)
	}
	if events.events[0].Gateway != "momo" || events.events[0].OrderID != "ord_1" {
		t.Fatalf("unexpected event fields %+v", events.events[0])
	}
}

func TestHandleCallbackFailureVerdictMarksPaymentFailed(t *testing.T) {
	repo := &stubPaymentRepo{
		applyResultFn: func(_ context.Context, req repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
			if req.Status != domain.PaymentStatusFailed {
				t.Fatalf("expected failed status, got %s", req.Status)
			}
			return repositories.PaymentResultOutcome{
				Payment: domain.Payment{ID: req.PaymentID, OrderID: "ord_1", Status: req.Status},
			}, nil
		},
	}
	verifier := &stubCallbackVerifier{
		verifyFn: func(gateway string, _ map[string]string) (payments.CallbackResult, error) {
			return payments.CallbackResult{Gateway: gateway, PaymentID: "pay_1", Success: false}, nil
		},
	}
	svc := newPaymentServiceForTest(t, repo, verifier, nil)

	outcome, err := svc.HandleCallback(context.Background(), CallbackPayload{
		VNPay: map[string]string{"vnp_TxnRef": "pay_1", "vnp_ResponseCode": "24"},
	})
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if !outcome.Success {
		t.Fatal("a verified failure verdict is still a processed callback")
	}
	if outcome.IsPaymentSuccess {
		t.Fatal("payment must be marked unsuccessful")
	}
}

func TestHandleCallbackInvalidSignature(t *testing.T) {
	applied := 0
	repo := &stubPaymentRepo{
		applyResultFn: func(context.Context, repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
			applied++
			return repositories.PaymentResultOutcome{}, nil
		},
	}
	verifier := &stubCallbackVerifier{
		verifyFn: func(string, map[string]string) (payments.CallbackResult, error) {
			return payments.CallbackResult{}, payments.ErrInvalidSignature
		},
	}
	svc := newPaymentServiceForTest(t, repo, verifier, nil)

	outcome, err := svc.HandleCallback(context.Background(), CallbackPayload{
		MoMo: map[string]string{"orderId": "pay_1", "signature": "tampered"},
	})
	if err != nil {
		t.Fatalf("invalid signature is a structured rejection, not an error: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected rejected outcome")
	}
	if applied != 0 {
		t.Fatalf("tampered callback must not mutate anything, got %d applies", applied)
	}
}

func TestHandleCallbackUnknownPayment(t *testing.T) {
	repo := &stubPaymentRepo{
		applyResultFn: func(context.Context, repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
			return repositories.PaymentResultOutcome{}, repositories.NewPaymentError(repositories.PaymentErrorNotFound, "payment pay_ghost missing", nil)
		},
	}
	verifier := &stubCallbackVerifier{
		verifyFn: func(gateway string, _ map[string]string) (payments.CallbackResult, error) {
			return payments.CallbackResult{Gateway: gateway, PaymentID: "pay_ghost", Success: true}, nil
		},
	}
	events := &capturePaymentEvents{}
	svc := newPaymentServiceForTest(t, repo, verifier, events)

	outcome, err := svc.HandleCallback(context.Background(), CallbackPayload{
		MoMo: map[string]string{"orderId": "pay_ghost"},
	})
	if err != nil {
		t.Fatalf("unknown payment is a structured rejection: %v", err)
	}
	if outcome.Success {
		t.Fatal("expected rejected outcome")
	}
	if len(events.events) != 0 {
		t.Fatalf("no event for a rejected callback, got %+v", events.events)
	}
}

func TestHandleCallbackGatewayDetection(t *testing.T) {
	svc := newPaymentServiceForTest(t, &stubPaymentRepo{}, &stubCallbackVerifier{}, nil)

	if _, err := svc.HandleCallback(context.Background(), CallbackPayload{}); !errors.Is(err, ErrPaymentUnknownGateway) {
		t.Fatalf("expected unknown gateway for empty payload, got %v", err)
	}
	_, err := svc.HandleCallback(context.Background(), CallbackPayload{
		MoMo:  map[string]string{"a": "1"},
		VNPay: map[string]string{"b": "2"},
	})
	if !errors.Is(err, ErrPaymentUnknownGateway) {
		t.Fatalf("expected unknown gateway for ambiguous payload, got %v", err)
	}
}

func TestHandleCallbackMissingPaymentID(t *testing.T) {
	verifier := &stubCallbackVerifier{
		verifyFn: func(gateway string, _ map[string]string) (payments.CallbackResult, error) {
			return payments.CallbackResult{Gateway: gateway, Success: true}, nil
		},
	}
	svc := newPaymentServiceForTest(t, &stubPaymentRepo{}, verifier, nil)

	outcome, err := svc.HandleCallback(context.Background(), CallbackPayload{
		MoMo: map[string]string{"resultCode": "0"},
	})
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if outcome.Success {
		t.Fatal("a callback without payment id must be rejected")
	}
}

func TestListPaymentsRequiresOrderID(t *testing.T) {
	svc := newPaymentServiceForTest(t, &stubPaymentRepo{}, &stubCallbackVerifier{}, nil)

	if _, err := svc.ListPayments(context.Background(), ""); !errors.Is(err, ErrPaymentInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
