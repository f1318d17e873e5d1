package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order mutations.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorNotFound indicates the order document is missing.
	OrderErrorNotFound OrderErrorCode = "order_not_found"
	// OrderErrorInvalidState indicates the current status forbids the operation.
	OrderErrorInvalidState OrderErrorCode = "order_invalid_state"
)

// OrderError wraps order-specific failures with machine readable codes.
type OrderError struct {
	Op      string
	Code    OrderErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing order.
func (e *OrderError) IsNotFound() bool { return e != nil && e.Code == OrderErrorNotFound }

// IsConflict reports whether the error represents an illegal state transition.
func (e *OrderError) IsConflict() bool { return e != nil && e.Code == OrderErrorInvalidState }

// IsUnavailable always reports false; order errors are never transient.
func (e *OrderError) IsUnavailable() bool { return false }

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
