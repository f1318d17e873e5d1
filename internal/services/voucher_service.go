package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/repositories"
)

const voucherIDPrefix = "vch_"

// ErrVoucherInvalidInput indicates the caller supplied invalid data.
var ErrVoucherInvalidInput = errors.New("voucher: invalid input")

// ErrVoucherNotFound indicates the voucher could not be located.
var ErrVoucherNotFound = errors.New("voucher: not found")

// VoucherServiceDeps wires the repository for voucher operations.
type VoucherServiceDeps struct {
	Vouchers    repositories.VoucherRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type voucherService struct {
	vouchers repositories.VoucherRepository
	now      func() time.Time
	newID    func() string
}

// NewVoucherService constructs a VoucherService.
func NewVoucherService(deps VoucherServiceDeps) (VoucherService, error) {
	if deps.Vouchers == nil {
		return nil, errors.New("voucher service: voucher repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &voucherService{
		vouchers: deps.Vouchers,
		now: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

// CheckCanUseVoucher evaluates code eligibility against the order amount. An
// ineligible voucher is a structured verdict, not an error; only backend
// failures error out.
func (s *voucherService) CheckCanUseVoucher(ctx context.Context, code string, orderAmount int64) (VoucherCheckResult, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return VoucherCheckResult{}, fmt.Errorf("%w: voucher code is required", ErrVoucherInvalidInput)
	}
	if orderAmount <= 0 {
		return VoucherCheckResult{}, fmt.Errorf("%w: order amount must be positive", ErrVoucherInvalidInput)
	}

	voucher, err := s.vouchers.FindByCode(ctx, trimmed)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return VoucherCheckResult{Valid: false, Message: "Mã giảm giá không tồn tại"}, nil
		}
		return VoucherCheckResult{}, err
	}

	return evaluateVoucher(voucher, orderAmount), nil
}

// evaluateVoucher applies the eligibility rules shared by the standalone
// check and the checkout flow.
func evaluateVoucher(voucher domain.Voucher, orderAmount int64) VoucherCheckResult {
	if !voucher.IsActive {
		return VoucherCheckResult{Valid: false, Message: "Mã giảm giá đã bị vô hiệu hóa"}
	}
	if voucher.MaxUsage != nil && voucher.UsageCount >= *voucher.MaxUsage {
		return VoucherCheckResult{Valid: false, Message: "Mã giảm giá đã hết lượt sử dụng"}
	}
	if voucher.MinOrderAmount != nil && orderAmount < *voucher.MinOrderAmount {
		return VoucherCheckResult{
			Valid:   false,
			Message: fmt.Sprintf("Đơn hàng tối thiểu %d VND để dùng mã này", *voucher.MinOrderAmount),
		}
	}
	if voucher.MaxOrderAmount != nil && orderAmount > *voucher.MaxOrderAmount {
		return VoucherCheckResult{
			Valid:   false,
			Message: fmt.Sprintf("Đơn hàng tối đa %d VND để dùng mã này", *voucher.MaxOrderAmount),
		}
	}

	reduction := domain.VoucherReduction(orderAmount, voucher.Discount, voucher.MaxDiscount, voucher.Type)
	return VoucherCheckResult{
		Valid:       true,
		Message:     "Mã giảm giá hợp lệ",
		ReducePrice: reduction,
		Voucher:     &voucher,
	}
}

// Create registers a new voucher.
func (s *voucherService) Create(ctx context.Context, cmd UpsertVoucherCommand) (Voucher, error) {
	voucher, err := s.buildVoucher(cmd)
	if err != nil {
		return Voucher{}, err
	}
	voucher.ID = voucherIDPrefix + s.newID()
	now := s.now()
	voucher.CreatedAt = now
	voucher.UpdatedAt = now

	if err := s.vouchers.Insert(ctx, voucher); err != nil {
		return Voucher{}, err
	}
	return voucher, nil
}

// Update replaces the voucher's configurable fields.
func (s *voucherService) Update(ctx context.Context, voucherID string, cmd UpsertVoucherCommand) (Voucher, error) {
	id := strings.TrimSpace(voucherID)
	if id == "" {
		return Voucher{}, fmt.Errorf("%w: voucher id is required", ErrVoucherInvalidInput)
	}

	existing, err := s.vouchers.FindByID(ctx, id)
	if err != nil {
		return Voucher{}, s.mapNotFound(err)
	}

	updated, err := s.buildVoucher(cmd)
	if err != nil {
		return Voucher{}, err
	}
	updated.ID = existing.ID
	updated.UsageCount = existing.UsageCount
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()

	if err := s.vouchers.Update(ctx, updated); err != nil {
		return Voucher{}, err
	}
	return updated, nil
}

// Delete removes a voucher.
func (s *voucherService) Delete(ctx context.Context, voucherID string) error {
	id := strings.TrimSpace(voucherID)
	if id == "" {
		return fmt.Errorf("%w: voucher id is required", ErrVoucherInvalidInput)
	}
	if err := s.vouchers.Delete(ctx, id); err != nil {
		return s.mapNotFound(err)
	}
	return nil
}

// List pages through vouchers.
func (s *voucherService) List(ctx context.Context, filter VoucherListFilter) (domain.PagedResult[Voucher], error) {
	return s.vouchers.List(ctx, filter)
}

func (s *voucherService) buildVoucher(cmd UpsertVoucherCommand) (domain.Voucher, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return domain.Voucher{}, fmt.Errorf("%w: voucher code is required", ErrVoucherInvalidInput)
	}
	if cmd.Type != domain.VoucherTypePercentage && cmd.Type != domain.VoucherTypeFixed {
		return domain.Voucher{}, fmt.Errorf("%w: unknown voucher type %q", ErrVoucherInvalidInput, cmd.Type)
	}
	if cmd.Discount <= 0 {
		return domain.Voucher{}, fmt.Errorf("%w: discount must be positive", ErrVoucherInvalidInput)
	}
	if cmd.Type == domain.VoucherTypePercentage && cmd.Discount > 100 {
		return domain.Voucher{}, fmt.Errorf("%w: percentage discount cannot exceed 100", ErrVoucherInvalidInput)
	}

	return domain.Voucher{
		Code:           code,
		Type:           cmd.Type,
		Discount:       cmd.Discount,
		MaxDiscount:    cmd.MaxDiscount,
		MinOrderAmount: cmd.MinOrderAmount,
		MaxOrderAmount: cmd.MaxOrderAmount,
		MaxUsage:       cmd.MaxUsage,
		IsActive:       cmd.IsActive,
	}, nil
}

func (s *voucherService) mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrVoucherNotFound, err)
	}
	return err
}
