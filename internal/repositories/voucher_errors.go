package repositories

import "fmt"

// VoucherErrorCode enumerates repository error causes for voucher mutations.
type VoucherErrorCode string

const (
	// VoucherErrorUnknown represents an unspecified failure.
	VoucherErrorUnknown VoucherErrorCode = "voucher_unknown"
	// VoucherErrorNotFound indicates the voucher document is missing.
	VoucherErrorNotFound VoucherErrorCode = "voucher_not_found"
	// VoucherErrorUsageExceeded indicates the usage counter reached its cap.
	VoucherErrorUsageExceeded VoucherErrorCode = "voucher_usage_exceeded"
	// VoucherErrorInactive indicates the voucher is disabled.
	VoucherErrorInactive VoucherErrorCode = "voucher_inactive"
)

// VoucherError wraps voucher-specific failures with machine readable codes.
type VoucherError struct {
	Op      string
	Code    VoucherErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *VoucherError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *VoucherError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewVoucherError constructs a typed voucher error.
func NewVoucherError(code VoucherErrorCode, message string, err error) *VoucherError {
	if message == "" {
		message = string(code)
	}
	return &VoucherError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
