package services

import (
	"context"
	"time"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CartItem      = domain.CartItem
	Variant       = domain.Variant
	Voucher       = domain.Voucher
	Order         = domain.Order
	OrderItem     = domain.OrderItem
	OrderStatus   = domain.OrderStatus
	Payment       = domain.Payment
	PaymentMethod = domain.PaymentMethod
	PaymentStatus = domain.PaymentStatus
	PayType       = domain.PayType
	Installment   = domain.Installment
	Address       = domain.Address
	UserProfile   = domain.UserProfile
	Page          = domain.Page
)

// CartService maintains the per-user cart lines with add-time stock checks.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartItem, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartItem, error)
	RemoveItem(ctx context.Context, userID string, itemID string) error
	ListItems(ctx context.Context, userID string) ([]CartLine, error)
}

// VoucherService validates discount codes and manages them for admins.
type VoucherService interface {
	CheckCanUseVoucher(ctx context.Context, code string, orderAmount int64) (VoucherCheckResult, error)
	Create(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error)
	Update(ctx context.Context, voucherID string, cmd UpsertVoucherCommand) (Voucher, error)
	Delete(ctx context.Context, voucherID string) error
	List(ctx context.Context, filter VoucherListFilter) (domain.PagedResult[Voucher], error)
}

// CheckoutService runs the order-creation transaction and the post-commit
// gateway call.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}

// OrderService exposes order reads and lifecycle transitions.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByCode(ctx context.Context, code string) (Order, error)
	ListUserOrders(ctx context.Context, userID string, filter OrderListFilter) (domain.PagedResult[Order], error)
	SearchOrders(ctx context.Context, filter OrderSearchFilter) (domain.PagedResult[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService verifies gateway callbacks and records their verdicts.
type PaymentService interface {
	HandleCallback(ctx context.Context, payload CallbackPayload) (CallbackOutcome, error)
	ListPayments(ctx context.Context, orderID string) ([]Payment, error)
}

// UserService reads and mutates profiles and shipping addresses.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	ListUsers(ctx context.Context, filter UserListFilter) (domain.PagedResult[UserProfile], error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error)
	DeleteAddress(ctx context.Context, userID string, addressID string) error
	SetDefaultAddress(ctx context.Context, userID string, addressID string) (Address, error)
}

// SystemService aggregates dependency health and build metadata.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
	Build() BuildInfo
}

// Filter aliases shared with the repository layer.
type (
	OrderListFilter   = repositories.OrderListFilter
	OrderSearchFilter = repositories.OrderSearchFilter
	VoucherListFilter = repositories.VoucherListFilter
	UserListFilter    = repositories.UserListFilter
)

// CartLine pairs a cart item with its current catalog variant.
type CartLine struct {
	Item    CartItem
	Variant Variant
}

type AddCartItemCommand struct {
	UserID    string
	VariantID string
	Quantity  int
}

type UpdateCartItemCommand struct {
	UserID   string
	ItemID   string
	Quantity int
}

// VoucherCheckResult is the structured eligibility verdict. Invalid codes
// produce Valid=false with a message, not an error.
type VoucherCheckResult struct {
	Valid       bool
	Message     string
	ReducePrice int64
	Voucher     *Voucher
}

type UpsertVoucherCommand struct {
	Code           string
	Type           domain.VoucherType
	Discount       int64
	MaxDiscount    *int64
	MinOrderAmount *int64
	MaxOrderAmount *int64
	MaxUsage       *int
	IsActive       bool
}

// PlaceOrderCommand carries everything the checkout transaction needs.
type PlaceOrderCommand struct {
	UserID           string
	CartItemIDs      []string
	ShippingAddress  string
	PaymentMethod    PaymentMethod
	VoucherID        *string
	Note             string
	PayType          PayType
	InstallmentCount int
	IdentityID       string
	FullName         string
	ClientIP         string
}

// PlaceOrderResult reports the committed order and, for gateway methods, the
// redirect URL. RedirectURL is empty for COD.
type PlaceOrderResult struct {
	Order       Order
	RedirectURL string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
}

// CallbackPayload holds the raw gateway parameters. Exactly one of the two
// maps should be populated; the handler detects the gateway from that.
type CallbackPayload struct {
	MoMo  map[string]string
	VNPay map[string]string
}

// CallbackOutcome reports the verified verdict and the mutated payment.
type CallbackOutcome struct {
	Success          bool
	IsPaymentSuccess bool
	Message          string
	Payment          *Payment
}

type UpdateProfileCommand struct {
	UserID   string
	FullName string
	Phone    string
	Language string
}

type UpsertAddressCommand struct {
	UserID    string
	AddressID *string
	Address   Address
}

// BuildInfo captures static build metadata surfaced by health endpoints.
type BuildInfo struct {
	Version     string
	Commit      string
	Environment string
	StartedAt   time.Time
}
