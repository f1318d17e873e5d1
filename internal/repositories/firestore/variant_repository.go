package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vietcart/api/internal/domain"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
	"github.com/vietcart/api/internal/platform/textutil"
	"github.com/vietcart/api/internal/repositories"
)

const variantsCollection = "variants"

// VariantRepository reads variants and applies guarded stock adjustments.
type VariantRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewVariantRepository constructs a Firestore-backed variant repository.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil)
	return &VariantRepository{provider: provider, variants: base}, nil
}

// FindByID loads a single variant.
func (r *VariantRepository) FindByID(ctx context.Context, variantID string) (domain.Variant, error) {
	if r == nil || r.variants == nil {
		return domain.Variant{}, errors.New("variant repository not initialised")
	}
	id := strings.TrimSpace(variantID)
	if id == "" {
		return domain.Variant{}, repositories.NewStockError(repositories.StockErrorVariantNotFound, "", "variant id is required", nil)
	}

	doc, err := r.variants.Get(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByIDs loads the named variants, keyed by ID. Missing variants are simply
// absent from the result; callers decide whether that is an error.
func (r *VariantRepository) FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("variant repository not initialised")
	}

	result := make(map[string]domain.Variant, len(variantIDs))
	for _, raw := range variantIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := result[id]; ok {
			continue
		}
		doc, err := r.variants.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		result[id] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

// AdjustStock applies the signed quantities atomically. Every decrement is
// guarded against the current counter so the transaction aborts rather than
// letting any stock go negative.
func (r *VariantRepository) AdjustStock(ctx context.Context, req repositories.StockAdjustRequest) (repositories.StockAdjustResult, error) {
	if r == nil || r.provider == nil {
		return repositories.StockAdjustResult{}, errors.New("variant repository not initialised")
	}
	if len(req.Lines) == 0 {
		return repositories.StockAdjustResult{}, repositories.NewStockError(repositories.StockErrorUnknown, "", "stock adjust: at least one line is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.StockAdjustResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		adjustments, err := readStockAdjustments(ctx, tx, r.variants, req.Lines)
		if err != nil {
			return err
		}
		stocks, err := writeStockAdjustments(tx, adjustments, now)
		if err != nil {
			return err
		}
		result = repositories.StockAdjustResult{Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.StockAdjustResult{}, wrapStockError("variants.adjustStock", err)
	}
	return result, nil
}

// stockAdjustment pairs a validated variant read with the delta to apply.
// Firestore transactions require every read to happen before the first write,
// so the guard check runs in the read phase and the counter write later.
type stockAdjustment struct {
	ref   *firestore.DocumentRef
	doc   variantDocument
	delta int
	next  int
}

// readStockAdjustments performs the read phase of a guarded stock mutation.
// Shared with the order repository so placement and cancellation use the exact
// same guard.
func readStockAdjustments(ctx context.Context, tx *firestore.Transaction, variants *pfirestore.BaseRepository[variantDocument], lines []repositories.StockLine) ([]stockAdjustment, error) {
	adjustments := make([]stockAdjustment, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.VariantID)
		if id == "" {
			return nil, repositories.NewStockError(repositories.StockErrorVariantNotFound, "", "stock adjust: variant id is required", nil)
		}
		if line.Quantity == 0 {
			return nil, repositories.NewStockError(repositories.StockErrorUnknown, id, fmt.Sprintf("stock adjust: quantity for %s must be non-zero", id), nil)
		}

		ref, err := variants.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, repositories.NewStockError(repositories.StockErrorVariantNotFound, id, fmt.Sprintf("variant %s not found", id), err)
			}
			return nil, err
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s: %w", id, err)
		}

		next := doc.Stock + line.Quantity
		if next < 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInsufficient, id, fmt.Sprintf("insufficient stock for %s: have %d, need %d", id, doc.Stock, -line.Quantity), nil)
		}
		adjustments = append(adjustments, stockAdjustment{ref: ref, doc: doc, delta: line.Quantity, next: next})
	}
	return adjustments, nil
}

// writeStockAdjustments performs the write phase prepared by readStockAdjustments.
func writeStockAdjustments(tx *firestore.Transaction, adjustments []stockAdjustment, now time.Time) (map[string]int, error) {
	stocks := make(map[string]int, len(adjustments))
	for _, adj := range adjustments {
		doc := adj.doc
		doc.Stock = adj.next
		doc.UpdatedAt = now
		if err := tx.Set(adj.ref, doc); err != nil {
			return nil, err
		}
		stocks[adj.ref.ID] = adj.next
	}
	return stocks, nil
}

type variantDocument struct {
	ProductRef string            `firestore:"productRef"`
	Name       string            `firestore:"name"`
	Price      int64             `firestore:"price"`
	Discount   float64           `firestore:"discount"`
	Stock      int               `firestore:"stock"`
	Metadata   map[string]string `firestore:"metadata,omitempty"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

func (d variantDocument) toDomain(id string) domain.Variant {
	return domain.Variant{
		ID:         id,
		ProductRef: strings.TrimSpace(d.ProductRef),
		Name:       d.Name,
		Price:      d.Price,
		Discount:   d.Discount,
		Stock:      d.Stock,
		Metadata:   textutil.NormalizeStringMap(d.Metadata),
		UpdatedAt:  d.UpdatedAt,
	}
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
