package repositories

import (
	"context"
	"time"

	domain "github.com/vietcart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	CartItems() CartItemRepository
	Variants() VariantRepository
	Vouchers() VoucherRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Users() UserRepository
	Addresses() AddressRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartItemRepository owns the per-user cart line documents.
type CartItemRepository interface {
	Insert(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	Update(ctx context.Context, item domain.CartItem) error
	Delete(ctx context.Context, userID string, itemID string) error
	FindByID(ctx context.Context, userID string, itemID string) (domain.CartItem, error)
	FindByVariant(ctx context.Context, userID string, variantID string) (domain.CartItem, bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error)
}

// VariantRepository reads catalog variants and mutates their stock counters.
// Stock adjustments run inside a transaction and never overwrite the counter
// with a value computed in application memory.
type VariantRepository interface {
	FindByID(ctx context.Context, variantID string) (domain.Variant, error)
	FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)
	AdjustStock(ctx context.Context, req StockAdjustRequest) (StockAdjustResult, error)
}

// StockLine names one variant and the signed quantity to apply to its counter.
// Negative quantities decrement and are guarded against going below zero.
type StockLine struct {
	VariantID string
	Quantity  int
}

// StockAdjustRequest batches guarded stock mutations applied atomically.
type StockAdjustRequest struct {
	Lines    []StockLine
	OrderRef string
	Now      time.Time
}

// StockAdjustResult reports the stock levels after the adjustment committed.
type StockAdjustResult struct {
	Stocks map[string]int
}

// VoucherRepository maintains discount codes and their usage counters.
type VoucherRepository interface {
	Insert(ctx context.Context, voucher domain.Voucher) error
	Update(ctx context.Context, voucher domain.Voucher) error
	Delete(ctx context.Context, voucherID string) error
	FindByID(ctx context.Context, voucherID string) (domain.Voucher, error)
	FindByCode(ctx context.Context, code string) (domain.Voucher, error)
	List(ctx context.Context, filter VoucherListFilter) (domain.PagedResult[domain.Voucher], error)
}

// OrderRepository persists orders. Place and Cancel are transactional: they
// mutate the order, its payment, stock counters, cart lines, and voucher usage
// as one atomic commit.
type OrderRepository interface {
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	Cancel(ctx context.Context, req CancelOrderRequest) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, update StatusUpdate) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByCode(ctx context.Context, code string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.PagedResult[domain.Order], error)
	Search(ctx context.Context, filter OrderSearchFilter) (domain.PagedResult[domain.Order], error)
}

// PlaceOrderRequest carries every document touched while placing an order.
// StockLines hold the decrements for the ordered quantities; CartItemIDs are
// deleted in the same transaction; when VoucherID is set the voucher usage
// counter is re-checked against its cap and incremented.
type PlaceOrderRequest struct {
	Order       domain.Order
	Payment     *domain.Payment
	StockLines  []StockLine
	CartItemIDs []string
	VoucherID   *string
	Now         time.Time
}

// CancelOrderRequest reverses an order. Stock restores and the voucher usage
// decrement happen in the same transaction as the status flip. Cancelling an
// already cancelled order is a no-op returning the stored order.
type CancelOrderRequest struct {
	OrderID     string
	Reason      string
	AllowedFrom []domain.OrderStatus
	Now         time.Time
}

// StatusUpdate guards a status transition with the set of states it may leave from.
type StatusUpdate struct {
	Expect      []domain.OrderStatus
	Now         time.Time
	DeliveredAt *time.Time
}

// PaymentRepository stores settlement attempts in a top-level collection so
// gateway callbacks can address them by ID alone.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
	ApplyResult(ctx context.Context, req PaymentResultRequest) (PaymentResultOutcome, error)
}

// PaymentResultRequest applies a gateway verdict to a payment and its order
// in one transaction.
type PaymentResultRequest struct {
	PaymentID      string
	Status         domain.PaymentStatus
	TransactionRef string
	Now            time.Time
}

// PaymentResultOutcome returns the documents as persisted after the verdict.
type PaymentResultOutcome struct {
	Payment domain.Payment
	Order   domain.Order
}

// UserRepository reads user profile documents.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	List(ctx context.Context, filter UserListFilter) (domain.PagedResult[domain.UserProfile], error)
}

// AddressRepository stores shipping addresses per user.
type AddressRepository interface {
	List(ctx context.Context, userID string) ([]domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	Delete(ctx context.Context, userID string, addressID string) error
	SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	Status    []domain.OrderStatus
	DateRange domain.RangeQuery[time.Time]
	Page      domain.Page
}

type OrderSearchFilter struct {
	UserID         string
	Code           string
	Status         []domain.OrderStatus
	PaymentMethods []domain.PaymentMethod
	PaymentStatus  []domain.PaymentStatus
	DateRange      domain.RangeQuery[time.Time]
	SortBy         string
	SortOrder      domain.SortOrder
	Page           domain.Page
}

type VoucherListFilter struct {
	ActiveOnly bool
	Page       domain.Page
}

type UserListFilter struct {
	Role string
	Page domain.Page
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
