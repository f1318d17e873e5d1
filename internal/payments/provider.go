package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a provider.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// ErrInvalidSignature is returned when a callback fails signature verification.
var ErrInvalidSignature = errors.New("payments: invalid signature")

// CreatePaymentRequest carries the fields a gateway needs to open a payment.
// Amount is in VND.
type CreatePaymentRequest struct {
	PaymentID string
	Amount    int64
	OrderInfo string
	ClientIP  string
}

// PaymentIntent is the gateway's answer to a create request. RedirectURL is
// where the customer completes the payment.
type PaymentIntent struct {
	Gateway     string
	RedirectURL string
	Raw         map[string]any
}

// CallbackResult is the normalised verdict extracted from a verified callback.
type CallbackResult struct {
	Gateway        string
	PaymentID      string
	Success        bool
	TransactionRef string
	Message        string
	Raw            map[string]string
}

// Provider is the contract gateway adapters implement. VerifyCallback must
// reject tampered payloads with ErrInvalidSignature before reading verdicts.
type Provider interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (PaymentIntent, error)
	VerifyCallback(params map[string]string) (CallbackResult, error)
}

// Manager routes payment operations to the gateway registered for a method.
// COD never reaches the manager; the checkout flow skips the gateway for it.
type Manager struct {
	providers map[string]Provider
}

// NewManager constructs a Manager over the supplied providers keyed by
// gateway name (momo, vnpay).
func NewManager(providers map[string]Provider) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registry := make(map[string]Provider, len(providers))
	for key, provider := range providers {
		name := strings.TrimSpace(strings.ToLower(key))
		if name == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", key)
		}
		registry[name] = provider
	}
	return &Manager{providers: registry}, nil
}

// Provider returns the registered adapter for the gateway name.
func (m *Manager) Provider(gateway string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	name := strings.TrimSpace(strings.ToLower(gateway))
	provider, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGateway, gateway)
	}
	return provider, nil
}

// CreatePayment delegates to the resolved gateway.
func (m *Manager) CreatePayment(ctx context.Context, gateway string, req CreatePaymentRequest) (PaymentIntent, error) {
	provider, err := m.Provider(gateway)
	if err != nil {
		return PaymentIntent{}, err
	}
	intent, err := provider.CreatePayment(ctx, req)
	if err != nil {
		return PaymentIntent{}, err
	}
	if intent.Gateway == "" {
		intent.Gateway = strings.TrimSpace(strings.ToLower(gateway))
	}
	return intent, nil
}

// VerifyCallback delegates to the resolved gateway.
func (m *Manager) VerifyCallback(gateway string, params map[string]string) (CallbackResult, error) {
	provider, err := m.Provider(gateway)
	if err != nil {
		return CallbackResult{}, err
	}
	result, err := provider.VerifyCallback(params)
	if err != nil {
		return CallbackResult{}, err
	}
	if result.Gateway == "" {
		result.Gateway = strings.TrimSpace(strings.ToLower(gateway))
	}
	return result, nil
}
