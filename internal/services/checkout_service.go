package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/payments"
	"github.com/vietcart/api/internal/repositories"
)

const (
	orderIDPrefix   = "ord_"
	paymentIDPrefix = "pay_"

	orderCodeCounter = "orders"
	orderInfoPrefix  = "Đơn hàng "

	defaultGatewayTimeout = 15 * time.Second
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutStaleCart indicates the requested cart item ids do not all
	// resolve to lines owned by the caller.
	ErrCheckoutStaleCart = errors.New("checkout: stale cart items")
	// ErrCheckoutInsufficientStock indicates a variant cannot cover the
	// ordered quantity.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutVoucherIneligible indicates the voucher failed eligibility.
	ErrCheckoutVoucherIneligible = errors.New("checkout: voucher ineligible")
	// ErrCheckoutVoucherNotFound indicates the referenced voucher does not
	// exist and strict voucher lookup is enabled.
	ErrCheckoutVoucherNotFound = errors.New("checkout: voucher not found")
)

// PaymentInitiationError reports that the order committed but the gateway
// redirect could not be obtained. The order survives; the client should show
// the code and offer a payment retry.
type PaymentInitiationError struct {
	OrderID   string
	OrderCode string
	Err       error
}

func (e *PaymentInitiationError) Error() string {
	return fmt.Sprintf("checkout: payment initiation failed for order %s: %v", e.OrderCode, e.Err)
}

func (e *PaymentInitiationError) Unwrap() error { return e.Err }

// PaymentGateway is the slice of the gateway manager the checkout flow needs.
type PaymentGateway interface {
	CreatePayment(ctx context.Context, gateway string, req payments.CreatePaymentRequest) (payments.PaymentIntent, error)
}

// CheckoutServiceDeps bundles collaborators for the checkout service.
type CheckoutServiceDeps struct {
	CartItems repositories.CartItemRepository
	Variants  repositories.VariantRepository
	Vouchers  repositories.VoucherRepository
	Orders    repositories.OrderRepository
	Addresses repositories.AddressRepository
	Counters  repositories.CounterRepository
	Gateway   PaymentGateway

	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(context.Context, string, map[string]any)

	// GatewayTimeout bounds the post-commit redirect URL call.
	GatewayTimeout time.Duration
	// StrictVoucherLookup makes a missing voucher id fail the order instead
	// of silently placing it without a discount.
	StrictVoucherLookup bool
}

type checkoutService struct {
	cartItems repositories.CartItemRepository
	variants  repositories.VariantRepository
	vouchers  repositories.VoucherRepository
	orders    repositories.OrderRepository
	addresses repositories.AddressRepository
	counters  repositories.CounterRepository
	gateway   PaymentGateway

	now    func() time.Time
	newID  func() string
	events OrderEventPublisher
	logger func(context.Context, string, map[string]any)

	gatewayTimeout time.Duration
	strictVoucher  bool
}

// NewCheckoutService wires dependencies into a concrete CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.CartItems == nil {
		return nil, errors.New("checkout service: cart item repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("checkout service: variant repository is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("checkout service: voucher repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &checkoutService{
		cartItems: deps.CartItems,
		variants:  deps.Variants,
		vouchers:  deps.Vouchers,
		orders:    deps.Orders,
		addresses: deps.Addresses,
		counters:  deps.Counters,
		gateway:   deps.Gateway,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:          idGen,
		events:         deps.Events,
		logger:         logger,
		gatewayTimeout: timeout,
		strictVoucher:  deps.StrictVoucherLookup,
	}, nil
}

// PlaceOrder runs the full checkout: validation and pricing, one atomic
// commit of order, payment, stock, cart, and voucher usage, then the
// post-commit gateway call for non-COD methods.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.CartItemIDs) == 0 {
		return PlaceOrderResult{}, fmt.Errorf("%w: at least one cart item is required", ErrCheckoutInvalidInput)
	}
	if !domain.ValidPaymentMethod(cmd.PaymentMethod) {
		return PlaceOrderResult{}, fmt.Errorf("%w: unknown payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}

	payType := cmd.PayType
	if payType == "" {
		payType = domain.PayTypeFull
	}
	if payType != domain.PayTypeFull && payType != domain.PayTypePartial {
		return PlaceOrderResult{}, fmt.Errorf("%w: unknown pay type %q", ErrCheckoutInvalidInput, payType)
	}
	if payType == domain.PayTypePartial {
		if cmd.InstallmentCount <= 1 {
			return PlaceOrderResult{}, fmt.Errorf("%w: installment count must exceed 1", ErrCheckoutInvalidInput)
		}
		if strings.TrimSpace(cmd.IdentityID) == "" || strings.TrimSpace(cmd.FullName) == "" {
			return PlaceOrderResult{}, fmt.Errorf("%w: identity id and full name are required for installments", ErrCheckoutInvalidInput)
		}
		if cmd.PaymentMethod == domain.PaymentMethodCOD {
			return PlaceOrderResult{}, fmt.Errorf("%w: installments require a gateway payment method", ErrCheckoutInvalidInput)
		}
	}

	addressID := strings.TrimSpace(cmd.ShippingAddress)
	if addressID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: shipping address is required", ErrCheckoutInvalidInput)
	}

	now := s.now()

	// Load and validate the cart lines.
	items, err := s.loadCartItems(ctx, userID, cmd.CartItemIDs)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	variantIDs := make([]string, 0, len(items))
	for _, item := range items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	variants, err := s.variants.FindByIDs(ctx, variantIDs)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	var subtotal int64
	totalItems := 0
	orderItems := make([]domain.OrderItem, 0, len(items))
	stockLines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		variant, ok := variants[item.VariantID]
		if !ok {
			return PlaceOrderResult{}, fmt.Errorf("%w: variant %s no longer exists", ErrCheckoutStaleCart, item.VariantID)
		}
		unit := domain.FinalUnitPrice(variant.Price, variant.Discount)
		line := unit * int64(item.Quantity)
		subtotal += line
		totalItems += item.Quantity
		orderItems = append(orderItems, domain.OrderItem{
			VariantID:  variant.ID,
			ProductRef: variant.ProductRef,
			Name:       variant.Name,
			Quantity:   item.Quantity,
			UnitPrice:  unit,
			Price:      line,
		})
		stockLines = append(stockLines, repositories.StockLine{
			VariantID: variant.ID,
			Quantity:  -item.Quantity,
		})
	}

	// Resolve the voucher and the reduction.
	voucherID, reduction, err := s.resolveVoucher(ctx, cmd.VoucherID, subtotal)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	finalTotal := subtotal - reduction

	// Snapshot the shipping address.
	address, err := s.addresses.Get(ctx, userID, addressID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PlaceOrderResult{}, fmt.Errorf("%w: shipping address %s not found", ErrCheckoutInvalidInput, addressID)
		}
		return PlaceOrderResult{}, err
	}

	code, err := s.generateOrderCode(ctx, now)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	orderID := orderIDPrefix + s.newID()
	paymentID := paymentIDPrefix + s.newID()

	paymentAmount := finalTotal
	var installment *domain.Installment
	if payType == domain.PayTypePartial {
		amount := domain.InstallmentAmount(finalTotal, cmd.InstallmentCount)
		nextDue := domain.NextPayDay(now)
		// The first installment is billed at placement, so the schedule
		// starts with one slice already counted.
		installment = &domain.Installment{
			Count:           cmd.InstallmentCount,
			NextPayDay:      &nextDue,
			NextPayAmount:   amount,
			Remaining:       cmd.InstallmentCount - 1,
			TotalPaidAmount: amount,
			IdentityID:      strings.TrimSpace(cmd.IdentityID),
			FullName:        strings.TrimSpace(cmd.FullName),
		}
		paymentAmount = amount
	}

	order := domain.Order{
		ID:                orderID,
		Code:              code,
		UserID:            userID,
		Status:            domain.OrderStatusPending,
		PaymentMethod:     cmd.PaymentMethod,
		PayType:           payType,
		TotalAmount:       finalTotal,
		TotalItems:        totalItems,
		VoucherID:         voucherID,
		DeliveryAddressID: addressID,
		ShippingAddress:   &address,
		LastPaymentID:     paymentID,
		LastPaymentStatus: domain.PaymentStatusPending,
		Installment:       installment,
		Note:              strings.TrimSpace(cmd.Note),
		Items:             orderItems,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	payment := domain.Payment{
		ID:        paymentID,
		OrderID:   orderID,
		Amount:    paymentAmount,
		Method:    cmd.PaymentMethod,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	placed, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Order:       order,
		Payment:     &payment,
		StockLines:  stockLines,
		CartItemIDs: cmd.CartItemIDs,
		VoucherID:   voucherID,
		Now:         now,
	})
	if err != nil {
		return PlaceOrderResult{}, s.mapPlaceError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       placed.ID,
		OrderCode:     placed.Code,
		CurrentStatus: string(placed.Status),
		ActorID:       userID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"totalAmount":   placed.TotalAmount,
			"paymentMethod": string(placed.PaymentMethod),
		},
	})

	// Step 14: the gateway call happens after the commit. Failure here never
	// rolls the order back.
	result := PlaceOrderResult{Order: placed}
	if cmd.PaymentMethod == domain.PaymentMethodCOD {
		return result, nil
	}
	if s.gateway == nil {
		return result, &PaymentInitiationError{OrderID: placed.ID, OrderCode: placed.Code, Err: errors.New("no payment gateway configured")}
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	intent, err := s.gateway.CreatePayment(gatewayCtx, string(cmd.PaymentMethod), payments.CreatePaymentRequest{
		PaymentID: paymentID,
		Amount:    paymentAmount,
		OrderInfo: orderInfoPrefix + placed.Code,
		ClientIP:  cmd.ClientIP,
	})
	if err != nil {
		s.logger(ctx, "checkout.payment.initiation.failed", map[string]any{
			"orderId":   placed.ID,
			"orderCode": placed.Code,
			"gateway":   string(cmd.PaymentMethod),
			"error":     err.Error(),
		})
		return result, &PaymentInitiationError{OrderID: placed.ID, OrderCode: placed.Code, Err: err}
	}

	result.RedirectURL = intent.RedirectURL
	return result, nil
}

func (s *checkoutService) loadCartItems(ctx context.Context, userID string, ids []string) ([]domain.CartItem, error) {
	seen := make(map[string]bool, len(ids))
	items := make([]domain.CartItem, 0, len(ids))
	for _, rawID := range ids {
		id := strings.TrimSpace(rawID)
		if id == "" || seen[id] {
			return nil, fmt.Errorf("%w: duplicate or blank cart item id", ErrCheckoutStaleCart)
		}
		seen[id] = true

		item, err := s.cartItems.FindByID(ctx, userID, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return nil, fmt.Errorf("%w: cart item %s not found", ErrCheckoutStaleCart, id)
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// resolveVoucher loads and validates the voucher against the subtotal.
// Missing vouchers either fail the order (strict mode) or degrade to no
// discount, matching the source system's lenient behaviour.
func (s *checkoutService) resolveVoucher(ctx context.Context, voucherID *string, subtotal int64) (*string, int64, error) {
	if voucherID == nil || strings.TrimSpace(*voucherID) == "" {
		return nil, 0, nil
	}
	id := strings.TrimSpace(*voucherID)

	voucher, err := s.vouchers.FindByID(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			if s.strictVoucher {
				return nil, 0, fmt.Errorf("%w: %s", ErrCheckoutVoucherNotFound, id)
			}
			s.logger(ctx, "checkout.voucher.missing", map[string]any{"voucherId": id})
			return nil, 0, nil
		}
		return nil, 0, err
	}

	verdict := evaluateVoucher(voucher, subtotal)
	if !verdict.Valid {
		return nil, 0, fmt.Errorf("%w: %s", ErrCheckoutVoucherIneligible, verdict.Message)
	}
	return &voucher.ID, verdict.ReducePrice, nil
}

func (s *checkoutService) generateOrderCode(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCodeCounter, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("VC-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) mapPlaceError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return fmt.Errorf("%w: %s", ErrCheckoutInsufficientStock, stockErr.Message)
	}
	var voucherErr *repositories.VoucherError
	if errors.As(err, &voucherErr) {
		return fmt.Errorf("%w: %s", ErrCheckoutVoucherIneligible, voucherErr.Message)
	}
	return err
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
