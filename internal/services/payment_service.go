package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/payments"
	"github.com/vietcart/api/internal/repositories"
)

const paymentEventStatusChanged = "payment.status.changed"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentUnknownGateway indicates the callback payload names no
	// supported gateway.
	ErrPaymentUnknownGateway = errors.New("payment: unknown gateway")
)

// CallbackVerifier is the slice of the gateway manager the callback handler
// needs.
type CallbackVerifier interface {
	VerifyCallback(gateway string, params map[string]string) (payments.CallbackResult, error)
}

// PaymentEventPublisher publishes payment domain events.
type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event PaymentEvent) error
}

// PaymentEvent captures metadata for emitted payment domain events.
type PaymentEvent struct {
	Type       string
	PaymentID  string
	OrderID    string
	Status     string
	Gateway    string
	OccurredAt time.Time
}

// PaymentServiceDeps bundles collaborators for the payment service.
type PaymentServiceDeps struct {
	Payments repositories.PaymentRepository
	Verifier CallbackVerifier
	Clock    func() time.Time
	Events   PaymentEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	verifier CallbackVerifier
	clock    func() time.Time
	events   PaymentEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service: callback verifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		payments: deps.Payments,
		verifier: deps.Verifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// HandleCallback verifies the gateway signature, applies the verdict to the
// payment, and updates the order's payment bookkeeping. The order STATUS is
// never touched here; fulfilment progresses through its own lifecycle.
func (s *paymentService) HandleCallback(ctx context.Context, payload CallbackPayload) (CallbackOutcome, error) {
	gateway, params, err := detectGateway(payload)
	if err != nil {
		return CallbackOutcome{}, err
	}

	verdict, err := s.verifier.VerifyCallback(gateway, params)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			s.logger(ctx, "payment.callback.signature.invalid", map[string]any{"gateway": gateway})
			return CallbackOutcome{Success: false, Message: "invalid signature"}, nil
		}
		return CallbackOutcome{}, err
	}

	paymentID := strings.TrimSpace(verdict.PaymentID)
	if paymentID == "" {
		return CallbackOutcome{Success: false, Message: "callback carries no payment id"}, nil
	}

	status := domain.PaymentStatusFailed
	if verdict.Success {
		status = domain.PaymentStatusSuccess
	}

	now := s.clock()
	outcome, err := s.payments.ApplyResult(ctx, repositories.PaymentResultRequest{
		PaymentID:      paymentID,
		Status:         status,
		TransactionRef: verdict.TransactionRef,
		Now:            now,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "payment.callback.unknown.payment", map[string]any{
				"gateway":   gateway,
				"paymentId": paymentID,
			})
			return CallbackOutcome{Success: false, Message: fmt.Sprintf("payment %s not found", paymentID)}, nil
		}
		return CallbackOutcome{}, err
	}

	s.publishEvent(ctx, PaymentEvent{
		Type:       paymentEventStatusChanged,
		PaymentID:  outcome.Payment.ID,
		OrderID:    outcome.Payment.OrderID,
		Status:     string(outcome.Payment.Status),
		Gateway:    gateway,
		OccurredAt: now,
	})

	payment := outcome.Payment
	return CallbackOutcome{
		Success:          true,
		IsPaymentSuccess: verdict.Success,
		Message:          "callback processed",
		Payment:          &payment,
	}, nil
}

// ListPayments returns every payment attempt for an order.
func (s *paymentService) ListPayments(ctx context.Context, orderID string) ([]Payment, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	return s.payments.ListByOrder(ctx, id)
}

// detectGateway picks the gateway from whichever payload field is populated.
func detectGateway(payload CallbackPayload) (string, map[string]string, error) {
	switch {
	case len(payload.MoMo) > 0 && len(payload.VNPay) > 0:
		return "", nil, fmt.Errorf("%w: payload names both gateways", ErrPaymentUnknownGateway)
	case len(payload.MoMo) > 0:
		return "momo", payload.MoMo, nil
	case len(payload.VNPay) > 0:
		return "vnpay", payload.VNPay, nil
	default:
		return "", nil, fmt.Errorf("%w: payload names no gateway", ErrPaymentUnknownGateway)
	}
}

func (s *paymentService) publishEvent(ctx context.Context, event PaymentEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPaymentEvent(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"type":    event.Type,
			"payment": event.PaymentID,
			"error":   err.Error(),
		})
	}
}
