package services

import (
	"context"
	"errors"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/repositories"
)

// notFoundError satisfies repositories.RepositoryError for tests exercising
// the not-found mapping paths.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string       { return e.msg }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

type stubCartItemRepo struct {
	insertFn        func(ctx context.Context, item domain.CartItem) (domain.CartItem, error)
	updateFn        func(ctx context.Context, item domain.CartItem) error
	deleteFn        func(ctx context.Context, userID string, itemID string) error
	findByIDFn      func(ctx context.Context, userID string, itemID string) (domain.CartItem, error)
	findByVariantFn func(ctx context.Context, userID string, variantID string) (domain.CartItem, bool, error)
	listByUserFn    func(ctx context.Context, userID string) ([]domain.CartItem, error)
}

func (s *stubCartItemRepo) Insert(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, item)
	}
	return item, nil
}

func (s *stubCartItemRepo) Update(ctx context.Context, item domain.CartItem) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, item)
	}
	return nil
}

func (s *stubCartItemRepo) Delete(ctx context.Context, userID string, itemID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, itemID)
	}
	return nil
}

func (s *stubCartItemRepo) FindByID(ctx context.Context, userID string, itemID string) (domain.CartItem, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, userID, itemID)
	}
	return domain.CartItem{}, &notFoundError{msg: "cart item not found"}
}

func (s *stubCartItemRepo) FindByVariant(ctx context.Context, userID string, variantID string) (domain.CartItem, bool, error) {
	if s.findByVariantFn != nil {
		return s.findByVariantFn(ctx, userID, variantID)
	}
	return domain.CartItem{}, false, nil
}

func (s *stubCartItemRepo) ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID)
	}
	return nil, nil
}

type stubVariantRepo struct {
	findByIDFn    func(ctx context.Context, variantID string) (domain.Variant, error)
	findByIDsFn   func(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)
	adjustStockFn func(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error)
}

func (s *stubVariantRepo) FindByID(ctx context.Context, variantID string) (domain.Variant, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, variantID)
	}
	return domain.Variant{}, &notFoundError{msg: "variant not found"}
}

func (s *stubVariantRepo) FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	if s.findByIDsFn != nil {
		return s.findByIDsFn(ctx, variantIDs)
	}
	return map[string]domain.Variant{}, nil
}

func (s *stubVariantRepo) AdjustStock(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
	if s.adjustStockFn != nil {
		return s.adjustStockFn(ctx, req)
	}
	return repositories.StockAdjustResult{}, nil
}

type stubVoucherRepo struct {
	insertFn     func(ctx context.Context, voucher domain.Voucher) error
	updateFn     func(ctx context.Context, voucher domain.Voucher) error
	deleteFn     func(ctx context.Context, voucherID string) error
	findByIDFn   func(ctx context.Context, voucherID string) (domain.Voucher, error)
	findByCodeFn func(ctx context.Context, code string) (domain.Voucher, error)
	listFn       func(ctx context.Context, filter repositories.VoucherListFilter) (domain.PagedResult[domain.Voucher], error)
}

func (s *stubVoucherRepo) Insert(ctx context.Context, voucher domain.Voucher) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, voucher)
	}
	return nil
}

func (s *stubVoucherRepo) Update(ctx context.Context, voucher domain.Voucher) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, voucher)
	}
	return nil
}

func (s *stubVoucherRepo) Delete(ctx context.Context, voucherID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, voucherID)
	}
	return nil
}

func (s *stubVoucherRepo) FindByID(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, voucherID)
	}
	return domain.Voucher{}, &notFoundError{msg: "voucher not found"}
}

func (s *stubVoucherRepo) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if s.findByCodeFn != nil {
		return s.findByCodeFn(ctx, code)
	}
	return domain.Voucher{}, &notFoundError{msg: "voucher not found"}
}

func (s *stubVoucherRepo) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.PagedResult[domain.Voucher], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.PagedResult[domain.Voucher]{}, nil
}

type stubOrderRepo struct {
	placeFn        func(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error)
	cancelFn       func(ctx context.Context, req repositories.CancelOrderRequest) (domain.Order, error)
	updateStatusFn func(ctx context.Context, orderID string, to domain.OrderStatus, update repositories.StatusUpdate) (domain.Order, error)
	updateFn       func(ctx context.Context, order domain.Order) error
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	findByCodeFn   func(ctx context.Context, code string) (domain.Order, error)
	listByUserFn   func(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.PagedResult[domain.Order], error)
	searchFn       func(ctx context.Context, filter repositories.OrderSearchFilter) (domain.PagedResult[domain.Order], error)
}

func (s *stubOrderRepo) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, req)
	}
	return req.Order, nil
}

func (s *stubOrderRepo) Cancel(ctx context.Context, req repositories.CancelOrderRequest) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, req)
	}
	return domain.Order{}, errors.New("cancel not stubbed")
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, update repositories.StatusUpdate) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, to, update)
	}
	return domain.Order{}, errors.New("update status not stubbed")
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, orderID)
	}
	return domain.Order{}, &notFoundError{msg: "order not found"}
}

func (s *stubOrderRepo) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if s.findByCodeFn != nil {
		return s.findByCodeFn(ctx, code)
	}
	return domain.Order{}, &notFoundError{msg: "order not found"}
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.PagedResult[domain.Order], error) {
	if s.listByUserFn != nil {
		return s.listByUserFn(ctx, userID, filter)
	}
	return domain.PagedResult[domain.Order]{}, nil
}

func (s *stubOrderRepo) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.PagedResult[domain.Order], error) {
	if s.searchFn != nil {
		return s.searchFn(ctx, filter)
	}
	return domain.PagedResult[domain.Order]{}, nil
}

type stubPaymentRepo struct {
	insertFn      func(ctx context.Context, payment domain.Payment) error
	updateFn      func(ctx context.Context, payment domain.Payment) error
	findByIDFn    func(ctx context.Context, paymentID string) (domain.Payment, error)
	listByOrderFn func(ctx context.Context, orderID string) ([]domain.Payment, error)
	applyResultFn func(ctx context.Context, req repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error)
}

func (s *stubPaymentRepo) Insert(ctx context.Context, payment domain.Payment) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, payment)
	}
	return nil
}

func (s *stubPaymentRepo) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, paymentID)
	}
	return domain.Payment{}, &notFoundError{msg: "payment not found"}
}

func (s *stubPaymentRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubPaymentRepo) ApplyResult(ctx context.Context, req repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
	if s.applyResultFn != nil {
		return s.applyResultFn(ctx, req)
	}
	return repositories.PaymentResultOutcome{}, errors.New("apply result not stubbed")
}

type stubUserRepo struct {
	findByIDFn      func(ctx context.Context, userID string) (domain.UserProfile, error)
	updateProfileFn func(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	listFn          func(ctx context.Context, filter repositories.UserListFilter) (domain.PagedResult[domain.UserProfile], error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findByIDFn != nil {
		return s.findByIDFn(ctx, userID)
	}
	return domain.UserProfile{}, &notFoundError{msg: "user not found"}
}

func (s *stubUserRepo) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.updateProfileFn != nil {
		return s.updateProfileFn(ctx, profile)
	}
	return profile, nil
}

func (s *stubUserRepo) List(ctx context.Context, filter repositories.UserListFilter) (domain.PagedResult[domain.UserProfile], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.PagedResult[domain.UserProfile]{}, nil
}

type stubAddressRepo struct {
	listFn       func(ctx context.Context, userID string) ([]domain.Address, error)
	getFn        func(ctx context.Context, userID string, addressID string) (domain.Address, error)
	upsertFn     func(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error)
	deleteFn     func(ctx context.Context, userID string, addressID string) error
	setDefaultFn func(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

func (s *stubAddressRepo) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubAddressRepo) Get(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, addressID)
	}
	return domain.Address{}, &notFoundError{msg: "address not found"}
}

func (s *stubAddressRepo) Upsert(ctx context.Context, userID string, addressID *string, addr domain.Address) (domain.Address, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, userID, addressID, addr)
	}
	return addr, nil
}

func (s *stubAddressRepo) Delete(ctx context.Context, userID string, addressID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, addressID)
	}
	return nil
}

func (s *stubAddressRepo) SetDefault(ctx context.Context, userID string, addressID string) (domain.Address, error) {
	if s.setDefaultFn != nil {
		return s.setDefaultFn(ctx, userID, addressID)
	}
	return domain.Address{}, &notFoundError{msg: "address not found"}
}

type stubCounterRepo struct {
	nextFn      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFn func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubCounterRepo) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if s.configureFn != nil {
		return s.configureFn(ctx, counterID, cfg)
	}
	return nil
}

type stubHealthRepo struct {
	collectFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn != nil {
		return s.collectFn(ctx)
	}
	return domain.SystemHealthReport{}, nil
}

// captureOrderEvents records published order events for assertions.
type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

// capturePaymentEvents records published payment events for assertions.
type capturePaymentEvents struct {
	events []PaymentEvent
	err    error
}

func (c *capturePaymentEvents) PublishPaymentEvent(_ context.Context, event PaymentEvent) error {
	c.events = append(c.events, event)
	return c.err
}
