package repositories

import "fmt"

// PaymentErrorCode enumerates repository error causes for payment mutations.
type PaymentErrorCode string

const (
	// PaymentErrorUnknown represents an unspecified failure.
	PaymentErrorUnknown PaymentErrorCode = "payment_unknown"
	// PaymentErrorNotFound indicates the payment document is missing.
	PaymentErrorNotFound PaymentErrorCode = "payment_not_found"
)

// PaymentError wraps payment-specific failures with machine readable codes.
type PaymentError struct {
	Op      string
	Code    PaymentErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *PaymentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing payment.
func (e *PaymentError) IsNotFound() bool { return e != nil && e.Code == PaymentErrorNotFound }

// IsConflict always reports false; payment repository writes are last-write-wins.
func (e *PaymentError) IsConflict() bool { return false }

// IsUnavailable always reports false; payment errors are never transient.
func (e *PaymentError) IsUnavailable() bool { return false }

// NewPaymentError constructs a typed payment error.
func NewPaymentError(code PaymentErrorCode, message string, err error) *PaymentError {
	if message == "" {
		message = string(code)
	}
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
