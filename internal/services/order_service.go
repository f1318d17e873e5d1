package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vietcart/api/internal/domain"
	"github.com/vietcart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
)

// orderStateTransitions is the server-enforced lifecycle graph. Terminal
// states map to empty slices.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusShipping, domain.OrderStatusCancelled},
	domain.OrderStatusShipping:  {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// cancellableStatuses are the states an order may be cancelled from. The
// compensating stock restore runs only on these transitions.
var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusShipping,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderCode      string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Payments repositories.PaymentRepository
	Vouchers repositories.VoucherRepository
	Clock    func() time.Time
	Events   OrderEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	payments repositories.PaymentRepository
	vouchers repositories.VoucherRepository
	clock    func() time.Time
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		payments: deps.Payments,
		vouchers: deps.Vouchers,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// GetOrder loads an order and composes its payment attempts and voucher.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return s.compose(ctx, order)
}

// GetOrderByCode loads an order by its public code, fully composed.
func (s *orderService) GetOrderByCode(ctx context.Context, code string) (Order, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return Order{}, fmt.Errorf("%w: order code is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByCode(ctx, trimmed)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return s.compose(ctx, order)
}

// ListUserOrders pages through the user's own orders.
func (s *orderService) ListUserOrders(ctx context.Context, userID string, filter OrderListFilter) (domain.PagedResult[Order], error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.PagedResult[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	result, err := s.orders.ListByUser(ctx, uid, filter)
	if err != nil {
		return domain.PagedResult[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// SearchOrders runs the admin search with filters and offset pagination.
func (s *orderService) SearchOrders(ctx context.Context, filter OrderSearchFilter) (domain.PagedResult[Order], error) {
	for _, status := range filter.Status {
		if !domain.ValidOrderStatus(status) {
			return domain.PagedResult[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	for _, status := range filter.PaymentStatus {
		if !domain.ValidPaymentStatus(status) {
			return domain.PagedResult[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, status)
		}
	}
	result, err := s.orders.Search(ctx, filter)
	if err != nil {
		return domain.PagedResult[Order]{}, s.mapRepositoryError(err)
	}
	return result, nil
}

// TransitionStatus moves the order along the lifecycle graph. Transitioning
// to cancelled delegates to Cancel so the stock restore always runs with the
// status write.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !domain.ValidOrderStatus(cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	if cmd.TargetStatus == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelOrderCommand{OrderID: orderID, ActorID: cmd.ActorID})
	}

	allowedFrom := transitionSources(cmd.TargetStatus)
	if len(allowedFrom) == 0 {
		return Order{}, fmt.Errorf("%w: no state may move to %s", ErrOrderInvalidState, cmd.TargetStatus)
	}

	now := s.clock()
	updated, err := s.orders.UpdateStatus(ctx, orderID, cmd.TargetStatus, repositories.StatusUpdate{
		Expect: allowedFrom,
		Now:    now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventStatusChanged,
		OrderID:       updated.ID,
		OrderCode:     updated.Code,
		CurrentStatus: string(updated.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})
	return updated, nil
}

// Cancel flips the order to cancelled, restoring stock in the repository
// transaction. Voucher usage stays counted. Re-cancelling is a no-op
// returning the stored order, never a double restore.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	cancelled, err := s.orders.Cancel(ctx, repositories.CancelOrderRequest{
		OrderID:     orderID,
		Reason:      strings.TrimSpace(cmd.Reason),
		AllowedFrom: cancellableStatuses,
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventStatusChanged,
		OrderID:       cancelled.ID,
		OrderCode:     cancelled.Code,
		CurrentStatus: string(cancelled.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})
	return cancelled, nil
}

// compose attaches payment attempts and the voucher to the order. Lookup
// failures on the composed parts degrade to the bare order with a warning.
func (s *orderService) compose(ctx context.Context, order domain.Order) (Order, error) {
	if s.payments != nil {
		attempts, err := s.payments.ListByOrder(ctx, order.ID)
		if err != nil {
			s.logger(ctx, "order.compose.payments.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		} else {
			order.Payments = attempts
		}
	}
	if s.vouchers != nil && order.VoucherID != nil && strings.TrimSpace(*order.VoucherID) != "" {
		voucher, err := s.vouchers.FindByID(ctx, *order.VoucherID)
		if err != nil {
			s.logger(ctx, "order.compose.voucher.failed", map[string]any{
				"orderId":   order.ID,
				"voucherId": *order.VoucherID,
				"error":     err.Error(),
			})
		} else {
			order.Voucher = &voucher
		}
	}
	return order, nil
}

// transitionSources returns the states allowed to move to the target.
func transitionSources(target domain.OrderStatus) []domain.OrderStatus {
	var sources []domain.OrderStatus
	for from, targets := range orderStateTransitions {
		for _, candidate := range targets {
			if candidate == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderInvalidState, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}
