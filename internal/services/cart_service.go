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

const cartItemIDPrefix = "cart_"

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart: invalid input")

// ErrCartItemNotFound indicates the requested cart line does not exist.
var ErrCartItemNotFound = errors.New("cart: item not found")

// ErrCartInsufficientStock indicates the requested quantity exceeds the
// variant's current stock.
var ErrCartInsufficientStock = errors.New("cart: insufficient stock")

// CartServiceDeps wires the repositories for cart operations.
type CartServiceDeps struct {
	CartItems   repositories.CartItemRepository
	Variants    repositories.VariantRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	cartItems repositories.CartItemRepository
	variants  repositories.VariantRepository
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.CartItems == nil {
		return nil, errors.New("cart service: cart item repository is required")
	}
	if deps.Variants == nil {
		return nil, errors.New("cart service: variant repository is required")
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

	return &cartService{
		cartItems: deps.CartItems,
		variants:  deps.Variants,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// AddItem appends a variant to the cart, merging into an existing line for
// the same variant. The requested quantity is validated against the current
// stock; the authoritative guard still runs at checkout.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartItem, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CartItem{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	variantID := strings.TrimSpace(cmd.VariantID)
	if variantID == "" {
		return CartItem{}, fmt.Errorf("%w: variant id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartItem{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	variant, err := s.variants.FindByID(ctx, variantID)
	if err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}

	existing, found, err := s.cartItems.FindByVariant(ctx, userID, variantID)
	if err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}

	now := s.now()
	requested := cmd.Quantity
	if found {
		requested += existing.Quantity
	}
	if requested > variant.Stock {
		return CartItem{}, fmt.Errorf("%w: %d requested, %d available", ErrCartInsufficientStock, requested, variant.Stock)
	}

	if found {
		existing.Quantity = requested
		existing.UpdatedAt = &now
		if err := s.cartItems.Update(ctx, existing); err != nil {
			return CartItem{}, mapCartRepositoryError(err)
		}
		return existing, nil
	}

	item := domain.CartItem{
		ID:            cartItemIDPrefix + s.newID(),
		UserID:        userID,
		VariantID:     variantID,
		Quantity:      cmd.Quantity,
		PriceSnapshot: domain.FinalUnitPrice(variant.Price, variant.Discount),
		AddedAt:       now,
	}
	inserted, err := s.cartItems.Insert(ctx, item)
	if err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}

	s.logger(ctx, "cart.item.added", map[string]any{
		"userId":    userID,
		"variantId": variantID,
		"quantity":  cmd.Quantity,
	})
	return inserted, nil
}

// UpdateQuantity sets the line quantity, validated against current stock.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartItem, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return CartItem{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return CartItem{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	item, err := s.cartItems.FindByID(ctx, userID, itemID)
	if err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}

	variant, err := s.variants.FindByID(ctx, item.VariantID)
	if err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}
	if cmd.Quantity > variant.Stock {
		return CartItem{}, fmt.Errorf("%w: %d requested, %d available", ErrCartInsufficientStock, cmd.Quantity, variant.Stock)
	}

	now := s.now()
	item.Quantity = cmd.Quantity
	item.UpdatedAt = &now
	if err := s.cartItems.Update(ctx, item); err != nil {
		return CartItem{}, mapCartRepositoryError(err)
	}
	return item, nil
}

// RemoveItem deletes a cart line.
func (s *cartService) RemoveItem(ctx context.Context, userID string, itemID string) error {
	uid := strings.TrimSpace(userID)
	id := strings.TrimSpace(itemID)
	if uid == "" || id == "" {
		return fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}
	if err := s.cartItems.Delete(ctx, uid, id); err != nil {
		return mapCartRepositoryError(err)
	}
	return nil
}

// ListItems returns the cart lines joined with their current variants. Lines
// whose variant has disappeared from the catalog are skipped.
func (s *cartService) ListItems(ctx context.Context, userID string) ([]CartLine, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	items, err := s.cartItems.ListByUser(ctx, uid)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	variantIDs := make([]string, 0, len(items))
	for _, item := range items {
		variantIDs = append(variantIDs, item.VariantID)
	}
	variants, err := s.variants.FindByIDs(ctx, variantIDs)
	if err != nil {
		return nil, mapCartRepositoryError(err)
	}

	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		variant, ok := variants[item.VariantID]
		if !ok {
			s.logger(ctx, "cart.item.orphaned", map[string]any{
				"userId":    uid,
				"itemId":    item.ID,
				"variantId": item.VariantID,
			})
			continue
		}
		lines = append(lines, CartLine{Item: item, Variant: variant})
	}
	return lines, nil
}

func mapCartRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
	}
	return err
}
