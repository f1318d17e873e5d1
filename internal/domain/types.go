package domain

import (
	"time"
)

// Page defines offset-based paging inputs for list operations.
type Page struct {
	Number int
	Limit  int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// PagedResult packages offset-paginated list results with totals.
type PagedResult[T any] struct {
	Items      []T
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// PaymentMethod enumerates the supported ways to settle an order.
type PaymentMethod string

const (
	// PaymentMethodCOD settles on delivery; no gateway interaction occurs.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodMomo settles through the MoMo wallet gateway.
	PaymentMethodMomo PaymentMethod = "momo"
	// PaymentMethodVNPay settles through the VNPay gateway.
	PaymentMethodVNPay PaymentMethod = "vnpay"
)

// PayType distinguishes full payment from an installment schedule.
type PayType string

const (
	// PayTypeFull charges the whole order total up front.
	PayTypeFull PayType = "full"
	// PayTypePartial charges the order in monthly installments.
	PayTypePartial PayType = "partial"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is placed and awaits fulfilment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusShipping indicates the order has been handed to a carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled and its stock restored. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment attempt outcomes.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the payment awaits gateway confirmation.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSuccess indicates the gateway confirmed the payment.
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusFailed indicates the gateway rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
)

// VoucherType selects the reduction formula applied by a voucher.
type VoucherType string

const (
	// VoucherTypePercentage reduces by a percentage of the order amount.
	VoucherTypePercentage VoucherType = "percentage"
	// VoucherTypeFixed reduces by a fixed amount.
	VoucherTypeFixed VoucherType = "fixed"
)

// CartItem is a user-owned, ephemeral selection of a variant. Deleted once
// converted into an order.
type CartItem struct {
	ID            string
	UserID        string
	VariantID     string
	Quantity      int
	PriceSnapshot int64
	AddedAt       time.Time
	UpdatedAt     *time.Time
}

// Variant is a purchasable SKU carrying its own price and stock counter.
// Stock is mutated exclusively through transactional adjustments, never a
// read-modify-write from application memory.
type Variant struct {
	ID         string
	ProductRef string
	Name       string
	Price      int64
	Discount   float64
	Stock      int
	Metadata   map[string]string
	UpdatedAt  time.Time
}

// Voucher is a discount code with usage cap and order-amount eligibility bounds.
// Amounts are VND; Discount holds a percentage value for percentage vouchers
// and an absolute amount for fixed ones.
type Voucher struct {
	ID             string
	Code           string
	Type           VoucherType
	Discount       int64
	MaxDiscount    *int64
	MinOrderAmount *int64
	MaxOrderAmount *int64
	MaxUsage       *int
	UsageCount     int
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserProfile is the storefront-side user document kept alongside the
// Firebase auth record.
type UserProfile struct {
	ID        string
	Email     string
	FullName  string
	Phone     string
	Language  string
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address is a user shipping address.
type Address struct {
	ID        string
	UserID    string
	FullName  string
	Phone     string
	Line1     string
	Ward      string
	District  string
	City      string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a frozen snapshot of a cart line at order time. Price stores
// the line total (unit price x quantity) and is never recomputed from the
// catalog.
type OrderItem struct {
	VariantID  string
	ProductRef string
	Name       string
	Quantity   int
	UnitPrice  int64
	Price      int64
}

// Installment captures the partial-payment schedule attached to an order.
type Installment struct {
	Count           int
	NextPayDay      *time.Time
	NextPayAmount   int64
	Remaining       int
	TotalPaidAmount int64
	IdentityID      string
	FullName        string
}

// Order is the persisted result of a checkout. Code is generated once at
// creation and is the externally visible identifier; ID stays internal.
type Order struct {
	ID                string
	Code              string
	UserID            string
	Status            OrderStatus
	PaymentMethod     PaymentMethod
	PayType           PayType
	TotalAmount       int64
	TotalItems        int
	VoucherID         *string
	DeliveryAddressID string
	ShippingAddress   *Address
	LastPaymentID     string
	LastPaymentStatus PaymentStatus
	Installment       *Installment
	Note              string
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeliveredAt       *time.Time
	CanceledAt        *time.Time
	CancelReason      *string
	Payments          []Payment
	Voucher           *Voucher
}

// Payment records one settlement attempt for an order. An order keeps its
// most recent attempt in LastPaymentID but may accumulate several rows over
// its life (retried installments).
type Payment struct {
	ID             string
	OrderID        string
	Amount         int64
	Method         PaymentMethod
	Status         PaymentStatus
	TransactionRef string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidPaymentMethod reports whether the method is one the storefront accepts.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodMomo, PaymentMethodVNPay:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether the status is a known payment outcome.
func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed:
		return true
	}
	return false
}

// ValidOrderStatus reports whether the status is a known lifecycle state.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusShipping, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}
