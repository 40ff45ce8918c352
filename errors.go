package x402

import (
	"errors"
	"fmt"
)

// PaymentError represents an error in the payment flow.
type PaymentError struct {
	Code    string
	Message string
	Cause   error
}

func (e *PaymentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// Error codes.
const (
	ErrCodeMalformedHeader        = "MALFORMED_HEADER"
	ErrCodeVerificationRejected   = "VERIFICATION_REJECTED"
	ErrCodeSettlementFailed       = "SETTLEMENT_FAILED"
	ErrCodeFacilitatorUnavailable = "FACILITATOR_UNAVAILABLE"
	ErrCodeRateLimited            = "RATE_LIMITED"
	ErrCodeCapacityExceeded       = "CAPACITY_EXCEEDED"
	ErrCodeInvalidConfig          = "INVALID_CONFIG"
)

// NewPaymentError creates a new PaymentError.
func NewPaymentError(code, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the code from a PaymentError anywhere in err's chain.
func ErrorCode(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsMalformedHeader reports whether err is a header decode failure.
func IsMalformedHeader(err error) bool {
	return ErrorCode(err) == ErrCodeMalformedHeader
}
