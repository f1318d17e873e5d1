package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vietcart/api/internal/domain"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
	"github.com/vietcart/api/internal/repositories"
)

const vouchersCollection = "vouchers"

// VoucherRepository persists discount vouchers and their usage counters.
type VoucherRepository struct {
	provider *pfirestore.Provider
	vouchers *pfirestore.BaseRepository[voucherDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher repository.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil)
	return &VoucherRepository{provider: provider, vouchers: base}, nil
}

// Insert stores a new voucher. The code must be unique; the document ID is the
// voucher ID, uniqueness of the code is enforced by a lookup inside a transaction.
func (r *VoucherRepository) Insert(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	id := strings.TrimSpace(voucher.ID)
	if id == "" {
		return repositories.NewVoucherError(repositories.VoucherErrorUnknown, "voucher id is required", nil)
	}
	code := normalizeVoucherCode(voucher.Code)
	if code == "" {
		return repositories.NewVoucherError(repositories.VoucherErrorUnknown, "voucher code is required", nil)
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		coll, err := r.collectionRef(ctx)
		if err != nil {
			return err
		}
		existing, err := tx.Documents(coll.Where("code", "==", code).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return repositories.NewVoucherError(repositories.VoucherErrorUnknown, fmt.Sprintf("voucher code %s already exists", code), nil)
		}

		ref := coll.Doc(id)
		doc := newVoucherDocument(voucher)
		doc.Code = code
		return tx.Create(ref, doc)
	})
	if err != nil {
		return wrapVoucherError("vouchers.insert", err)
	}
	return nil
}

// Update overwrites the voucher document.
func (r *VoucherRepository) Update(ctx context.Context, voucher domain.Voucher) error {
	if r == nil || r.vouchers == nil {
		return errors.New("voucher repository not initialised")
	}
	id := strings.TrimSpace(voucher.ID)
	if id == "" {
		return repositories.NewVoucherError(repositories.VoucherErrorUnknown, "voucher id is required", nil)
	}
	doc := newVoucherDocument(voucher)
	if _, err := r.vouchers.Set(ctx, id, doc); err != nil {
		return wrapVoucherError("vouchers.update", err)
	}
	return nil
}

// Delete removes the voucher document.
func (r *VoucherRepository) Delete(ctx context.Context, voucherID string) error {
	if r == nil || r.provider == nil {
		return errors.New("voucher repository not initialised")
	}
	id := strings.TrimSpace(voucherID)
	if id == "" {
		return repositories.NewVoucherError(repositories.VoucherErrorUnknown, "voucher id is required", nil)
	}
	ref, err := r.vouchers.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("vouchers.delete", err)
	}
	return nil
}

// FindByID loads a voucher by document ID.
func (r *VoucherRepository) FindByID(ctx context.Context, voucherID string) (domain.Voucher, error) {
	if r == nil || r.vouchers == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	id := strings.TrimSpace(voucherID)
	if id == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, "voucher id is required", nil)
	}
	doc, err := r.vouchers.Get(ctx, id)
	if err != nil {
		return domain.Voucher{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode loads a voucher by its public code.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	normalized := normalizeVoucherCode(code)
	if normalized == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, "voucher code is required", nil)
	}

	coll, err := r.collectionRef(ctx)
	if err != nil {
		return domain.Voucher{}, err
	}
	iter := coll.Where("code", "==", normalized).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, fmt.Sprintf("voucher %s not found", normalized), nil)
	}
	if err != nil {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.findByCode", err)
	}
	var doc voucherDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Voucher{}, fmt.Errorf("decode voucher %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// List returns vouchers with offset pagination.
func (r *VoucherRepository) List(ctx context.Context, filter repositories.VoucherListFilter) (domain.PagedResult[domain.Voucher], error) {
	if r == nil || r.provider == nil {
		return domain.PagedResult[domain.Voucher]{}, errors.New("voucher repository not initialised")
	}

	coll, err := r.collectionRef(ctx)
	if err != nil {
		return domain.PagedResult[domain.Voucher]{}, err
	}

	query := coll.Query
	if filter.ActiveOnly {
		query = query.Where("isActive", "==", true)
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.PagedResult[domain.Voucher]{}, pfirestore.WrapError("vouchers.count", err)
	}

	page, limit := normalizePage(filter.Page)
	iter := query.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var items []domain.Voucher
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.PagedResult[domain.Voucher]{}, pfirestore.WrapError("vouchers.list", err)
		}
		var doc voucherDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PagedResult[domain.Voucher]{}, fmt.Errorf("decode voucher %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	return newPagedResult(items, total, page, limit), nil
}

// voucherAdjustment carries a voucher read out of the transaction read phase
// so its usage counter can be written after all reads completed.
type voucherAdjustment struct {
	ref *firestore.DocumentRef
	doc voucherDocument
}

// readVoucherForIncrement re-checks activity and the usage cap inside the
// order placement transaction so the cap cannot be exceeded by concurrent
// checkouts.
func readVoucherForIncrement(ctx context.Context, tx *firestore.Transaction, vouchers *pfirestore.BaseRepository[voucherDocument], voucherID string) (voucherAdjustment, error) {
	id := strings.TrimSpace(voucherID)
	if id == "" {
		return voucherAdjustment{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, "voucher id is required", nil)
	}
	ref, err := vouchers.DocumentRef(ctx, id)
	if err != nil {
		return voucherAdjustment{}, err
	}
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return voucherAdjustment{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, fmt.Sprintf("voucher %s not found", id), err)
		}
		return voucherAdjustment{}, err
	}
	var doc voucherDocument
	if err := snap.DataTo(&doc); err != nil {
		return voucherAdjustment{}, fmt.Errorf("decode voucher %s: %w", id, err)
	}
	if !doc.IsActive {
		return voucherAdjustment{}, repositories.NewVoucherError(repositories.VoucherErrorInactive, fmt.Sprintf("voucher %s is inactive", id), nil)
	}
	if doc.MaxUsage != nil && doc.UsageCount >= *doc.MaxUsage {
		return voucherAdjustment{}, repositories.NewVoucherError(repositories.VoucherErrorUsageExceeded, fmt.Sprintf("voucher %s usage cap reached", id), nil)
	}
	return voucherAdjustment{ref: ref, doc: doc}, nil
}

// writeVoucherUsage counts one more redemption for the voucher loaded by
// readVoucherForIncrement.
func writeVoucherUsage(tx *firestore.Transaction, adj voucherAdjustment, now time.Time) error {
	if adj.ref == nil {
		return nil
	}
	doc := adj.doc
	doc.UsageCount++
	doc.UpdatedAt = now
	return tx.Set(adj.ref, doc)
}

func (r *VoucherRepository) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(vouchersCollection), nil
}

func normalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type voucherDocument struct {
	Code           string    `firestore:"code"`
	Type           string    `firestore:"type"`
	Discount       int64     `firestore:"discount"`
	MaxDiscount    *int64    `firestore:"maxDiscount,omitempty"`
	MinOrderAmount *int64    `firestore:"minOrderAmount,omitempty"`
	MaxOrderAmount *int64    `firestore:"maxOrderAmount,omitempty"`
	MaxUsage       *int      `firestore:"maxUsage,omitempty"`
	UsageCount     int       `firestore:"usageCount"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newVoucherDocument(v domain.Voucher) voucherDocument {
	return voucherDocument{
		Code:           normalizeVoucherCode(v.Code),
		Type:           string(v.Type),
		Discount:       v.Discount,
		MaxDiscount:    v.MaxDiscount,
		MinOrderAmount: v.MinOrderAmount,
		MaxOrderAmount: v.MaxOrderAmount,
		MaxUsage:       v.MaxUsage,
		UsageCount:     v.UsageCount,
		IsActive:       v.IsActive,
		CreatedAt:      v.CreatedAt.UTC(),
		UpdatedAt:      v.UpdatedAt.UTC(),
	}
}

func (d voucherDocument) toDomain(id string) domain.Voucher {
	return domain.Voucher{
		ID:             id,
		Code:           d.Code,
		Type:           domain.VoucherType(d.Type),
		Discount:       d.Discount,
		MaxDiscount:    d.MaxDiscount,
		MinOrderAmount: d.MinOrderAmount,
		MaxOrderAmount: d.MaxOrderAmount,
		MaxUsage:       d.MaxUsage,
		UsageCount:     d.UsageCount,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func wrapVoucherError(op string, err error) error {
	if err == nil {
		return nil
	}
	var voucherErr *repositories.VoucherError
	if errors.As(err, &voucherErr) {
		if voucherErr.Op == "" {
			voucherErr.Op = op
		}
		return voucherErr
	}
	return pfirestore.WrapError(op, err)
}
