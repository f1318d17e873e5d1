package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vietcart/api/internal/platform/firestore"
	"github.com/vietcart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the typed
// accessors the service layer depends on.
type Registry struct {
	provider *pfirestore.Provider

	cartItems *CartItemRepository
	variants  *VariantRepository
	vouchers  *VoucherRepository
	orders    *OrderRepository
	payments  *PaymentRepository
	users     *UserRepository
	addresses *AddressRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

// NewRegistry constructs every repository against the shared provider. The
// health repository is injected because its dependency checks span more than
// Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	cartItems, err := NewCartItemRepository(provider)
	if err != nil {
		return nil, err
	}
	variants, err := NewVariantRepository(provider)
	if err != nil {
		return nil, err
	}
	vouchers, err := NewVoucherRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	payments, err := NewPaymentRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		cartItems: cartItems,
		variants:  variants,
		vouchers:  vouchers,
		orders:    orders,
		payments:  payments,
		users:     users,
		addresses: addresses,
		counters:  counters,
		health:    health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) CartItems() repositories.CartItemRepository { return r.cartItems }
func (r *Registry) Variants() repositories.VariantRepository   { return r.variants }
func (r *Registry) Vouchers() repositories.VoucherRepository   { return r.vouchers }
func (r *Registry) Orders() repositories.OrderRepository       { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository   { return r.payments }
func (r *Registry) Users() repositories.UserRepository         { return r.users }
func (r *Registry) Addresses() repositories.AddressRepository  { return r.addresses }
func (r *Registry) Counters() repositories.CounterRepository   { return r.counters }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

// RunInTx executes fn within a Firestore transaction boundary.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

var _ repositories.Registry = (*Registry)(nil)
