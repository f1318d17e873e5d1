package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/vietcart/api/internal/domain"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
)

const cartItemsCollectionPattern = "users/%s/cartItems"

// CartItemRepository persists per-user cart lines in Firestore.
type CartItemRepository struct {
	provider *pfirestore.Provider
}

// NewCartItemRepository constructs a Firestore-backed cart item repository.
func NewCartItemRepository(provider *pfirestore.Provider) (*CartItemRepository, error) {
	if provider == nil {
		return nil, errors.New("cart item repository requires firestore provider")
	}
	return &CartItemRepository{provider: provider}, nil
}

// Insert stores a new cart line and returns it with its generated ID.
func (r *CartItemRepository) Insert(ctx context.Context, item domain.CartItem) (domain.CartItem, error) {
	coll, err := r.collection(ctx, item.UserID)
	if err != nil {
		return domain.CartItem{}, err
	}

	ref := coll.NewDoc()
	if strings.TrimSpace(item.ID) != "" {
		ref = coll.Doc(strings.TrimSpace(item.ID))
	}
	doc := newCartItemDocument(item)
	if _, err := ref.Create(ctx, doc); err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cartItems.insert", err)
	}
	return doc.toDomain(ref.ID, item.UserID), nil
}

// Update overwrites an existing cart line.
func (r *CartItemRepository) Update(ctx context.Context, item domain.CartItem) error {
	coll, err := r.collection(ctx, item.UserID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return errors.New("cartItems.update: item id is required")
	}
	doc := newCartItemDocument(item)
	if _, err := coll.Doc(id).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("cartItems.update", err)
	}
	return nil
}

// Delete removes a cart line. Deleting an absent line is not an error.
func (r *CartItemRepository) Delete(ctx context.Context, userID string, itemID string) error {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return errors.New("cartItems.delete: item id is required")
	}
	if _, err := coll.Doc(id).Delete(ctx); err != nil {
		return pfirestore.WrapError("cartItems.delete", err)
	}
	return nil
}

// FindByID loads a single cart line owned by the user.
func (r *CartItemRepository) FindByID(ctx context.Context, userID string, itemID string) (domain.CartItem, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.CartItem{}, err
	}
	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.CartItem{}, errors.New("cartItems.get: item id is required")
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		return domain.CartItem{}, pfirestore.WrapError("cartItems.get", err)
	}
	var doc cartItemDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CartItem{}, fmt.Errorf("decode cart item %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID, userID), nil
}

// FindByVariant returns the cart line holding the given variant, if any.
func (r *CartItemRepository) FindByVariant(ctx context.Context, userID string, variantID string) (domain.CartItem, bool, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.CartItem{}, false, err
	}

	iter := coll.Where("variantId", "==", strings.TrimSpace(variantID)).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.CartItem{}, false, nil
	}
	if err != nil {
		return domain.CartItem{}, false, pfirestore.WrapError("cartItems.findByVariant", err)
	}
	var doc cartItemDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.CartItem{}, false, fmt.Errorf("decode cart item %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID, userID), true, nil
}

// ListByUser returns all cart lines for the user, newest first.
func (r *CartItemRepository) ListByUser(ctx context.Context, userID string) ([]domain.CartItem, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return nil, err
	}

	iter := coll.OrderBy("addedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var items []domain.CartItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("cartItems.list", err)
		}
		var doc cartItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode cart item %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID, userID))
	}
	return items, nil
}

func (r *CartItemRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("cart item repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("cartItems: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(cartItemsCollectionPattern, uid)), nil
}

type cartItemDocument struct {
	VariantID     string     `firestore:"variantId"`
	Quantity      int        `firestore:"quantity"`
	PriceSnapshot int64      `firestore:"priceSnapshot"`
	AddedAt       time.Time  `firestore:"addedAt"`
	UpdatedAt     *time.Time `firestore:"updatedAt,omitempty"`
}

func newCartItemDocument(item domain.CartItem) cartItemDocument {
	return cartItemDocument{
		VariantID:     strings.TrimSpace(item.VariantID),
		Quantity:      item.Quantity,
		PriceSnapshot: item.PriceSnapshot,
		AddedAt:       item.AddedAt.UTC(),
		UpdatedAt:     item.UpdatedAt,
	}
}

func (d cartItemDocument) toDomain(id string, userID string) domain.CartItem {
	return domain.CartItem{
		ID:            id,
		UserID:        userID,
		VariantID:     d.VariantID,
		Quantity:      d.Quantity,
		PriceSnapshot: d.PriceSnapshot,
		AddedAt:       d.AddedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
