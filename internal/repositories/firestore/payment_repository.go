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

const paymentsCollection = "payments"

// PaymentRepository persists payment attempts in a top-level collection so
// gateway callbacks can resolve a payment by ID without knowing the order.
type PaymentRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[paymentDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

// Insert stores a new payment attempt.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	if r == nil || r.base == nil {
		return errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return repositories.NewPaymentError(repositories.PaymentErrorUnknown, "payment id is required", nil)
	}
	doc := newPaymentDocument(payment)
	if _, err := r.base.Set(ctx, id, doc); err != nil {
		return err
	}
	return nil
}

// Update overwrites a stored payment.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	return r.Insert(ctx, payment)
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	if r == nil || r.base == nil {
		return domain.Payment{}, errors.New("payment repository not initialised")
	}
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return domain.Payment{}, repositories.NewPaymentError(repositories.PaymentErrorNotFound, "payment id is required", nil)
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByOrder returns all payment attempts for an order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("payment repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, repositories.NewPaymentError(repositories.PaymentErrorUnknown, "order id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	iter := client.Collection(paymentsCollection).
		Where("orderId", "==", oid).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var payments []domain.Payment
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("payments.listByOrder", err)
		}
		var doc paymentDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode payment %s: %w", snap.Ref.ID, err)
		}
		payments = append(payments, doc.toDomain(snap.Ref.ID))
	}
	return payments, nil
}

// ApplyResult records a gateway verdict on the payment and updates the
// order's payment bookkeeping in the same transaction. The order status is
// never touched here; the delivery lifecycle moves independently.
func (r *PaymentRepository) ApplyResult(ctx context.Context, req repositories.PaymentResultRequest) (repositories.PaymentResultOutcome, error) {
	if r == nil || r.provider == nil {
		return repositories.PaymentResultOutcome{}, errors.New("payment repository not initialised")
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return repositories.PaymentResultOutcome{}, repositories.NewPaymentError(repositories.PaymentErrorNotFound, "payment id is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var outcome repositories.PaymentResultOutcome
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Read phase.
		payRef, err := r.base.DocumentRef(ctx, paymentID)
		if err != nil {
			return err
		}
		paySnap, err := tx.Get(payRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewPaymentError(repositories.PaymentErrorNotFound, fmt.Sprintf("payment %s not found", paymentID), err)
			}
			return err
		}
		var payDoc paymentDocument
		if err := paySnap.DataTo(&payDoc); err != nil {
			return fmt.Errorf("decode payment %s: %w", paymentID, err)
		}

		orderRef, err := r.orders.DocumentRef(ctx, payDoc.OrderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", payDoc.OrderID), err)
			}
			return err
		}
		var orderDoc orderDocument
		if err := orderSnap.DataTo(&orderDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", payDoc.OrderID, err)
		}

		// lastPaymentId must keep pointing at the most recent attempt. A
		// late callback for a superseded payment updates that payment row
		// only.
		isCurrentAttempt := orderDoc.LastPaymentID == "" || orderDoc.LastPaymentID == paymentID
		if !isCurrentAttempt {
			currentRef, err := r.base.DocumentRef(ctx, orderDoc.LastPaymentID)
			if err != nil {
				return err
			}
			currentSnap, err := tx.Get(currentRef)
			if err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			if err != nil {
				isCurrentAttempt = true
			} else {
				var currentDoc paymentDocument
				if err := currentSnap.DataTo(&currentDoc); err != nil {
					return fmt.Errorf("decode payment %s: %w", orderDoc.LastPaymentID, err)
				}
				isCurrentAttempt = !currentDoc.CreatedAt.After(payDoc.CreatedAt)
			}
		}

		// Write phase.
		payDoc.Status = string(req.Status)
		if ref := strings.TrimSpace(req.TransactionRef); ref != "" {
			payDoc.TransactionRef = ref
		}
		payDoc.UpdatedAt = now
		if err := tx.Set(payRef, payDoc); err != nil {
			return err
		}

		if isCurrentAttempt {
			orderDoc.LastPaymentID = paymentID
			orderDoc.LastPaymentStatus = string(req.Status)
		}
		orderDoc.UpdatedAt = now
		// The placement transaction already counts the first slice, so the
		// schedule only advances for follow-up installment payments.
		isFollowUp := !payDoc.CreatedAt.Equal(orderDoc.CreatedAt)
		if req.Status == domain.PaymentStatusSuccess && orderDoc.PayType == string(domain.PayTypePartial) && orderDoc.Installment != nil && isFollowUp {
			inst := orderDoc.Installment
			inst.TotalPaidAmount += payDoc.Amount
			if inst.Remaining > 0 {
				inst.Remaining--
			}
			if inst.Remaining > 0 {
				next := domain.NextPayDay(now)
				inst.NextPayDay = &next
			} else {
				inst.NextPayDay = nil
				inst.NextPayAmount = 0
			}
		}
		if err := tx.Set(orderRef, orderDoc); err != nil {
			return err
		}

		outcome = repositories.PaymentResultOutcome{
			Payment: payDoc.toDomain(paymentID),
			Order:   orderDoc.toDomain(payDoc.OrderID),
		}
		return nil
	})
	if err != nil {
		var payErr *repositories.PaymentError
		var orderErr *repositories.OrderError
		if errors.As(err, &payErr) || errors.As(err, &orderErr) {
			return repositories.PaymentResultOutcome{}, err
		}
		return repositories.PaymentResultOutcome{}, pfirestore.WrapError("payments.applyResult", err)
	}
	return outcome, nil
}

// Document mapping -----------------------------------------------------------

type paymentDocument struct {
	OrderID        string    `firestore:"orderId"`
	Amount         int64     `firestore:"amount"`
	Method         string    `firestore:"method"`
	Status         string    `firestore:"status"`
	TransactionRef string    `firestore:"transactionRef,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:        strings.TrimSpace(payment.OrderID),
		Amount:         payment.Amount,
		Method:         string(payment.Method),
		Status:         string(payment.Status),
		TransactionRef: strings.TrimSpace(payment.TransactionRef),
		CreatedAt:      payment.CreatedAt.UTC(),
		UpdatedAt:      payment.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:             id,
		OrderID:        d.OrderID,
		Amount:         d.Amount,
		Method:         domain.PaymentMethod(d.Method),
		Status:         domain.PaymentStatus(d.Status),
		TransactionRef: d.TransactionRef,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
