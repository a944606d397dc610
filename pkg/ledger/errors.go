package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrAccountNotFound                 = errors.New("account not found")
	ErrInsufficientCredits             = errors.New("insufficient credits")
	ErrReservationNotFound             = errors.New("reservation not found")
	ErrReservationAlreadyProcessed     = errors.New("reservation already processed")
	ErrReservationExpired              = errors.New("reservation expired")
	ErrDuplicateIdempotencyKeyConflict = errors.New("idempotency key reused for a different operation")
	ErrAccountLockTimeout              = errors.New("account lock timeout")
)

// Store-level and validation error values.
var (
	ErrDuplicateIdempotencyKey  = errors.New("duplicate idempotency key")
	ErrReservationExists        = errors.New("reservation already exists")
	ErrInvalidAccountID         = errors.New("invalid account id")
	ErrInvalidTransactionID     = errors.New("invalid transaction id")
	ErrInvalidReservationID     = errors.New("invalid reservation id")
	ErrInvalidIdempotencyKey    = errors.New("invalid idempotency key")
	ErrInvalidSourcePlatform    = errors.New("invalid source platform")
	ErrInvalidReference         = errors.New("invalid reference")
	ErrInvalidPurpose           = errors.New("invalid purpose")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidTransactionKind   = errors.New("invalid transaction kind")
	ErrInvalidReservationStatus = errors.New("invalid reservation status")
	ErrInvalidReservationExpiry = errors.New("invalid reservation expiry")
	ErrInvalidMetadataJSON      = errors.New("invalid metadata json")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
	ErrInvalidBalance           = errors.New("invalid balance")
)

// IsValidationError reports whether err was caused by malformed caller input.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAccountID,
		ErrInvalidTransactionID,
		ErrInvalidReservationID,
		ErrInvalidIdempotencyKey,
		ErrInvalidSourcePlatform,
		ErrInvalidReference,
		ErrInvalidPurpose,
		ErrInvalidAmount,
		ErrInvalidTransactionKind,
		ErrInvalidMetadataJSON,
		ErrInvalidReservationExpiry,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
