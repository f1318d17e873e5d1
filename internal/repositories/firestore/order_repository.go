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

const ordersCollection = "orders"

// OrderRepository persists orders with their frozen line items inline. Place
// and Cancel run multi-document transactions spanning orders, payments, stock
// counters, cart lines, and voucher usage.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	variants *pfirestore.BaseRepository[variantDocument]
	vouchers *pfirestore.BaseRepository[voucherDocument]
	payments *pfirestore.BaseRepository[paymentDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		variants: pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil),
		vouchers: pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil),
		payments: pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil),
	}, nil
}

// Place commits the order, its payment, the guarded stock decrements, the
// cart line deletions, and the voucher usage increment as one transaction.
// Any guard failure aborts the whole commit.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order id is required", nil)
	}
	if strings.TrimSpace(order.UserID) == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order user id is required", nil)
	}
	if len(order.Items) == 0 {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order must contain at least one item", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Read phase.
		adjustments, err := readStockAdjustments(ctx, tx, r.variants, req.StockLines)
		if err != nil {
			return err
		}

		var voucherAdj voucherAdjustment
		if req.VoucherID != nil && strings.TrimSpace(*req.VoucherID) != "" {
			voucherAdj, err = readVoucherForIncrement(ctx, tx, r.vouchers, *req.VoucherID)
			if err != nil {
				return err
			}
		}

		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}

		// Write phase.
		if _, err := writeStockAdjustments(tx, adjustments, now); err != nil {
			return err
		}
		if err := writeVoucherUsage(tx, voucherAdj, now); err != nil {
			return err
		}

		doc := newOrderDocument(order)
		doc.Status = string(domain.OrderStatusPending)
		doc.CreatedAt = now
		doc.UpdatedAt = now
		if err := tx.Create(orderRef, doc); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewOrderError(repositories.OrderErrorUnknown, fmt.Sprintf("order %s already exists", order.ID), err)
			}
			return err
		}

		if req.Payment != nil {
			payRef, err := r.payments.DocumentRef(ctx, req.Payment.ID)
			if err != nil {
				return err
			}
			payDoc := newPaymentDocument(*req.Payment)
			payDoc.CreatedAt = now
			payDoc.UpdatedAt = now
			if err := tx.Create(payRef, payDoc); err != nil {
				return err
			}
		}

		cartColl := client.Collection(fmt.Sprintf(cartItemsCollectionPattern, order.UserID))
		for _, itemID := range req.CartItemIDs {
			id := strings.TrimSpace(itemID)
			if id == "" {
				continue
			}
			if err := tx.Delete(cartColl.Doc(id)); err != nil {
				return err
			}
		}

		placed = doc.toDomain(order.ID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.place", err)
	}
	return placed, nil
}

// Cancel flips the order to cancelled and restores its stock lines in the
// same transaction. Voucher usage is not released. Cancelling an already
// cancelled order returns the stored order unchanged.
func (r *OrderRepository) Cancel(ctx context.Context, req repositories.CancelOrderRequest) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var cancelled domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := domain.OrderStatus(doc.Status)
		if current == domain.OrderStatusCancelled {
			cancelled = doc.toDomain(orderID)
			return nil
		}
		if !statusIn(current, req.AllowedFrom) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s cannot be cancelled from %s", orderID, current), nil)
		}

		// Remaining reads: the stock lines to restore. Voucher usage is
		// never handed back; usageCount only moves forward.
		restoreLines := make([]repositories.StockLine, 0, len(doc.Items))
		for _, item := range doc.Items {
			restoreLines = append(restoreLines, repositories.StockLine{VariantID: item.VariantID, Quantity: item.Quantity})
		}
		adjustments, err := readStockAdjustments(ctx, tx, r.variants, restoreLines)
		if err != nil {
			return err
		}

		// Write phase.
		if _, err := writeStockAdjustments(tx, adjustments, now); err != nil {
			return err
		}

		reason := strings.TrimSpace(req.Reason)
		doc.Status = string(domain.OrderStatusCancelled)
		doc.CanceledAt = &now
		if reason != "" {
			doc.CancelReason = &reason
		}
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}

		cancelled = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.cancel", err)
	}
	return cancelled, nil
}

// UpdateStatus moves the order to a new status, guarded by the expected
// current states.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus, update repositories.StatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	now := update.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", id), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", id, err)
		}

		current := domain.OrderStatus(doc.Status)
		if len(update.Expect) > 0 && !statusIn(current, update.Expect) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is %s, expected one of %v", id, current, update.Expect), nil)
		}

		doc.Status = string(to)
		doc.UpdatedAt = now
		if to == domain.OrderStatusDelivered {
			deliveredAt := now
			if update.DeliveredAt != nil {
				deliveredAt = update.DeliveredAt.UTC()
			}
			doc.DeliveredAt = &deliveredAt
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// Update overwrites stored order fields outside a guarded transition.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}
	doc := newOrderDocument(order)
	if _, err := r.orders.Set(ctx, id, doc); err != nil {
		return wrapOrderError("orders.update", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode loads an order by its public code.
func (r *OrderRepository) FindByCode(ctx context.Context, code string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order code is required", nil)
	}

	coll, err := r.collectionRef(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	iter := coll.Where("code", "==", trimmed).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", trimmed), nil)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.findByCode", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByUser returns the user's orders with offset pagination.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) (domain.PagedResult[domain.Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.PagedResult[domain.Order]{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "user id is required", nil)
	}
	return r.Search(ctx, repositories.OrderSearchFilter{
		UserID:    uid,
		Status:    filter.Status,
		DateRange: filter.DateRange,
		Page:      filter.Page,
	})
}

// Search queries orders with filters, sorting, and offset pagination.
func (r *OrderRepository) Search(ctx context.Context, filter repositories.OrderSearchFilter) (domain.PagedResult[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.PagedResult[domain.Order]{}, errors.New("order repository not initialised")
	}

	coll, err := r.collectionRef(ctx)
	if err != nil {
		return domain.PagedResult[domain.Order]{}, err
	}

	query := coll.Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if code := strings.TrimSpace(filter.Code); code != "" {
		query = query.Where("code", "==", code)
	}
	if len(filter.Status) > 0 {
		values := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			values = append(values, string(s))
		}
		query = query.Where("status", "in", values)
	}
	if len(filter.PaymentMethods) > 0 {
		values := make([]string, 0, len(filter.PaymentMethods))
		for _, m := range filter.PaymentMethods {
			values = append(values, string(m))
		}
		query = query.Where("paymentMethod", "in", values)
	}
	if len(filter.PaymentStatus) > 0 {
		values := make([]string, 0, len(filter.PaymentStatus))
		for _, s := range filter.PaymentStatus {
			values = append(values, string(s))
		}
		query = query.Where("lastPaymentStatus", "in", values)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.PagedResult[domain.Order]{}, pfirestore.WrapError("orders.count", err)
	}

	sortField := strings.TrimSpace(filter.SortBy)
	if sortField == "" {
		sortField = "createdAt"
	}
	direction := firestore.Desc
	if filter.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}

	page, limit := normalizePage(filter.Page)
	iter := query.OrderBy(sortField, direction).Offset((page - 1) * limit).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var items []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.PagedResult[domain.Order]{}, pfirestore.WrapError("orders.search", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PagedResult[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	return newPagedResult(items, total, page, limit), nil
}

func (r *OrderRepository) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection), nil
}

func statusIn(status domain.OrderStatus, allowed []domain.OrderStatus) bool {
	for _, candidate := range allowed {
		if status == candidate {
			return true
		}
	}
	return false
}

// Document mapping -----------------------------------------------------------

type orderDocument struct {
	Code              string                   `firestore:"code"`
	UserID            string                   `firestore:"userId"`
	Status            string                   `firestore:"status"`
	PaymentMethod     string                   `firestore:"paymentMethod"`
	PayType           string                   `firestore:"payType"`
	TotalAmount       int64                    `firestore:"totalAmount"`
	TotalItems        int                      `firestore:"totalItems"`
	VoucherID         *string                  `firestore:"voucherId,omitempty"`
	DeliveryAddressID string                   `firestore:"deliveryAddressId"`
	ShippingAddress   *addressSnapshotDocument `firestore:"shippingAddress,omitempty"`
	LastPaymentID     string                   `firestore:"lastPaymentId"`
	LastPaymentStatus string                   `firestore:"lastPaymentStatus,omitempty"`
	Installment       *installmentDocument     `firestore:"installment,omitempty"`
	Note              string                   `firestore:"note,omitempty"`
	Items             []orderItemDocument      `firestore:"items"`
	CreatedAt         time.Time                `firestore:"createdAt"`
	UpdatedAt         time.Time                `firestore:"updatedAt"`
	DeliveredAt       *time.Time               `firestore:"deliveredAt,omitempty"`
	CanceledAt        *time.Time               `firestore:"canceledAt,omitempty"`
	CancelReason      *string                  `firestore:"cancelReason,omitempty"`
}

type orderItemDocument struct {
	VariantID  string `firestore:"variantId"`
	ProductRef string `firestore:"productRef"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Price      int64  `firestore:"price"`
}

type addressSnapshotDocument struct {
	FullName string `firestore:"fullName"`
	Phone    string `firestore:"phone"`
	Line1    string `firestore:"line1"`
	Ward     string `firestore:"ward"`
	District string `firestore:"district"`
	City     string `firestore:"city"`
}

type installmentDocument struct {
	Count           int        `firestore:"count"`
	NextPayDay      *time.Time `firestore:"nextPayDay,omitempty"`
	NextPayAmount   int64      `firestore:"nextPayAmount"`
	Remaining       int        `firestore:"remaining"`
	TotalPaidAmount int64      `firestore:"totalPaidAmount"`
	IdentityID      string     `firestore:"identityId"`
	FullName        string     `firestore:"fullName"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			VariantID:  strings.TrimSpace(item.VariantID),
			ProductRef: strings.TrimSpace(item.ProductRef),
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Price:      item.Price,
		}
	}

	doc := orderDocument{
		Code:              strings.TrimSpace(order.Code),
		UserID:            strings.TrimSpace(order.UserID),
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		PayType:           string(order.PayType),
		TotalAmount:       order.TotalAmount,
		TotalItems:        order.TotalItems,
		VoucherID:         order.VoucherID,
		DeliveryAddressID: strings.TrimSpace(order.DeliveryAddressID),
		LastPaymentID:     strings.TrimSpace(order.LastPaymentID),
		LastPaymentStatus: string(order.LastPaymentStatus),
		Note:              strings.TrimSpace(order.Note),
		Items:             items,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
		DeliveredAt:       order.DeliveredAt,
		CanceledAt:        order.CanceledAt,
		CancelReason:      order.CancelReason,
	}
	if order.ShippingAddress != nil {
		doc.ShippingAddress = &addressSnapshotDocument{
			FullName: order.ShippingAddress.FullName,
			Phone:    order.ShippingAddress.Phone,
			Line1:    order.ShippingAddress.Line1,
			Ward:     order.ShippingAddress.Ward,
			District: order.ShippingAddress.District,
			City:     order.ShippingAddress.City,
		}
	}
	if order.Installment != nil {
		doc.Installment = &installmentDocument{
			Count:           order.Installment.Count,
			NextPayDay:      order.Installment.NextPayDay,
			NextPayAmount:   order.Installment.NextPayAmount,
			Remaining:       order.Installment.Remaining,
			TotalPaidAmount: order.Installment.TotalPaidAmount,
			IdentityID:      order.Installment.IdentityID,
			FullName:        order.Installment.FullName,
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			VariantID:  item.VariantID,
			ProductRef: item.ProductRef,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Price:      item.Price,
		}
	}

	order := domain.Order{
		ID:                id,
		Code:              d.Code,
		UserID:            d.UserID,
		Status:            domain.OrderStatus(d.Status),
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		PayType:           domain.PayType(d.PayType),
		TotalAmount:       d.TotalAmount,
		TotalItems:        d.TotalItems,
		VoucherID:         d.VoucherID,
		DeliveryAddressID: d.DeliveryAddressID,
		LastPaymentID:     d.LastPaymentID,
		LastPaymentStatus: domain.PaymentStatus(d.LastPaymentStatus),
		Note:              d.Note,
		Items:             items,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		DeliveredAt:       d.DeliveredAt,
		CanceledAt:        d.CanceledAt,
		CancelReason:      d.CancelReason,
	}
	if d.ShippingAddress != nil {
		order.ShippingAddress = &domain.Address{
			FullName: d.ShippingAddress.FullName,
			Phone:    d.ShippingAddress.Phone,
			Line1:    d.ShippingAddress.Line1,
			Ward:     d.ShippingAddress.Ward,
			District: d.ShippingAddress.District,
			City:     d.ShippingAddress.City,
		}
	}
	if d.Installment != nil {
		order.Installment = &domain.Installment{
			Count:           d.Installment.Count,
			NextPayDay:      d.Installment.NextPayDay,
			NextPayAmount:   d.Installment.NextPayAmount,
			Remaining:       d.Installment.Remaining,
			TotalPaidAmount: d.Installment.TotalPaidAmount,
			IdentityID:      d.Installment.IdentityID,
			FullName:        d.Installment.FullName,
		}
	}
	return order
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return stockErr
	}
	var voucherErr *repositories.VoucherError
	if errors.As(err, &voucherErr) {
		return voucherErr
	}
	return pfirestore.WrapError(op, err)
}
