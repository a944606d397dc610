package wire

import (
	"errors"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

// ErrorClass groups ledger errors by how a transport should report them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInvalid
	ClassInsufficient
	ClassAlreadyProcessed
	ClassExpired
	ClassNotFound
	ClassConflict
	ClassUnavailable
)

// Stable error codes carried in transport error bodies.
const (
	CodeInvalidArgument             = "invalid_argument"
	CodeInvalidAccountID            = "invalid_account_id"
	CodeInvalidReservationID        = "invalid_reservation_id"
	CodeInvalidIdempotencyKey       = "invalid_idempotency_key"
	CodeInvalidSourcePlatform       = "invalid_source_platform"
	CodeInvalidReference            = "invalid_reference"
	CodeInvalidPurpose              = "invalid_purpose"
	CodeInvalidAmount               = "invalid_amount"
	CodeInvalidTransactionKind      = "invalid_transaction_kind"
	CodeInvalidMetadata             = "invalid_metadata_json"
	CodeInvalidReservationExpiry    = "invalid_reservation_expiry"
	CodeInvalidLimit                = "invalid_limit"
	CodeInvalidPlatformUserID       = "invalid_platform_user_id"
	CodeInsufficientCredits         = "insufficient_credits"
	CodeReservationAlreadyProcessed = "reservation_already_processed"
	CodeReservationExpired          = "reservation_expired"
	CodeAccountNotFound             = "account_not_found"
	CodeReservationNotFound         = "reservation_not_found"
	CodeIdempotencyConflict         = "idempotency_key_conflict"
	CodeAccountLockTimeout          = "account_lock_timeout"
	CodeInternal                    = "internal"
)

type classification struct {
	target error
	class  ErrorClass
	code   string
}

var classifications = []classification{
	{target: ledger.ErrInvalidAccountID, class: ClassInvalid, code: CodeInvalidAccountID},
	{target: ledger.ErrInvalidReservationID, class: ClassInvalid, code: CodeInvalidReservationID},
	{target: ledger.ErrInvalidIdempotencyKey, class: ClassInvalid, code: CodeInvalidIdempotencyKey},
	{target: ledger.ErrInvalidSourcePlatform, class: ClassInvalid, code: CodeInvalidSourcePlatform},
	{target: ledger.ErrInvalidReference, class: ClassInvalid, code: CodeInvalidReference},
	{target: ledger.ErrInvalidPurpose, class: ClassInvalid, code: CodeInvalidPurpose},
	{target: ledger.ErrInvalidAmount, class: ClassInvalid, code: CodeInvalidAmount},
	{target: ledger.ErrInvalidTransactionKind, class: ClassInvalid, code: CodeInvalidTransactionKind},
	{target: ledger.ErrInvalidMetadataJSON, class: ClassInvalid, code: CodeInvalidMetadata},
	{target: ledger.ErrInvalidReservationExpiry, class: ClassInvalid, code: CodeInvalidReservationExpiry},
	{target: ErrInvalidLimit, class: ClassInvalid, code: CodeInvalidLimit},
	{target: ErrMissingField, class: ClassInvalid, code: CodeInvalidArgument},
	{target: identity.ErrInvalidPlatformUserID, class: ClassInvalid, code: CodeInvalidPlatformUserID},
	{target: ledger.ErrInsufficientCredits, class: ClassInsufficient, code: CodeInsufficientCredits},
	{target: ledger.ErrReservationAlreadyProcessed, class: ClassAlreadyProcessed, code: CodeReservationAlreadyProcessed},
	{target: ledger.ErrReservationExpired, class: ClassExpired, code: CodeReservationExpired},
	{target: ledger.ErrAccountNotFound, class: ClassNotFound, code: CodeAccountNotFound},
	{target: ledger.ErrReservationNotFound, class: ClassNotFound, code: CodeReservationNotFound},
	{target: ledger.ErrDuplicateIdempotencyKeyConflict, class: ClassConflict, code: CodeIdempotencyConflict},
	{target: ledger.ErrAccountLockTimeout, class: ClassUnavailable, code: CodeAccountLockTimeout},
}

// Classify returns the transport class and stable code for err.
func Classify(err error) (ErrorClass, string) {
	for _, candidate := range classifications {
		if errors.Is(err, candidate.target) {
			return candidate.class, candidate.code
		}
	}
	return ClassInternal, CodeInternal
}
