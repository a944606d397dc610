package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Credits is a non-negative quantity of credits (balances, availability).
type Credits int64

// PositiveCredits is a strictly positive quantity of credits (operation amounts).
type PositiveCredits int64

// CreditDelta is a signed, non-zero change applied by a transaction.
type CreditDelta int64

// AccountID identifies a unified account. It is the unit of locking.
type AccountID struct {
	value string
}

// TransactionID identifies a transaction log row.
type TransactionID struct {
	value string
}

// ReservationID identifies a reservation.
type ReservationID struct {
	value string
}

// IdempotencyKey scopes duplicate detection. The zero value means "no key".
type IdempotencyKey struct {
	value string
}

// SourcePlatform names the product surface an operation originated from.
type SourcePlatform struct {
	value string
}

// Reference links a ledger row to the external entity that caused it. The zero value means "no reference".
type Reference struct {
	id         string
	entityType string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id ReservationID) IsZero() bool {
	return id.value == ""
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	if len(trimmed) > maxIdempotencyKeyLength {
		return IdempotencyKey{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidIdempotencyKey, maxIdempotencyKeyLength)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// ParseOptionalIdempotencyKey returns the zero key for blank input.
func ParseOptionalIdempotencyKey(raw string) (IdempotencyKey, error) {
	if strings.TrimSpace(raw) == "" {
		return IdempotencyKey{}, nil
	}
	return NewIdempotencyKey(raw)
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// IsZero reports whether no key was supplied.
func (key IdempotencyKey) IsZero() bool {
	return key.value == ""
}

// NewSourcePlatform validates and lower-cases a platform name.
func NewSourcePlatform(raw string) (SourcePlatform, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return SourcePlatform{}, fmt.Errorf("%w: empty value", ErrInvalidSourcePlatform)
	}
	return SourcePlatform{value: normalized}, nil
}

// String returns the normalized platform name.
func (platform SourcePlatform) String() string {
	return platform.value
}

// NewReference builds a reference from an id/type pair. Both empty yields the zero Reference.
func NewReference(id string, entityType string) (Reference, error) {
	trimmedID := strings.TrimSpace(id)
	trimmedType := strings.TrimSpace(entityType)
	if trimmedID == "" && trimmedType == "" {
		return Reference{}, nil
	}
	if trimmedID == "" || trimmedType == "" {
		return Reference{}, fmt.Errorf("%w: id and type must be supplied together", ErrInvalidReference)
	}
	return Reference{id: trimmedID, entityType: trimmedType}, nil
}

// ID returns the referenced entity id.
func (reference Reference) ID() string {
	return reference.id
}

// Type returns the referenced entity type.
func (reference Reference) Type() string {
	return reference.entityType
}

// IsZero reports whether no reference was supplied.
func (reference Reference) IsZero() bool {
	return reference.id == ""
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = defaultMetadataJSON
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal([]byte(normalized), &object); err != nil {
		return MetadataJSON{}, fmt.Errorf("%w: must be a json object", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return defaultMetadataJSON
	}
	return metadata.value
}

// NewCredits validates a non-negative credit quantity.
func NewCredits(raw int64) (Credits, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidBalance)
	}
	return Credits(raw), nil
}

// Int64 exposes the raw value.
func (amount Credits) Int64() int64 {
	return int64(amount)
}

// NewPositiveCredits validates an amount and ensures it is strictly positive.
func NewPositiveCredits(raw int64) (PositiveCredits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveCredits(raw), nil
}

// Int64 exposes the raw value.
func (amount PositiveCredits) Int64() int64 {
	return int64(amount)
}

// ToCredits converts to the non-negative type.
func (amount PositiveCredits) ToCredits() Credits {
	return Credits(amount)
}

// ToDelta converts to a positive transaction delta.
func (amount PositiveCredits) ToDelta() CreditDelta {
	return CreditDelta(amount)
}

// NewCreditDelta validates a signed transaction amount.
func NewCreditDelta(raw int64) (CreditDelta, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	return CreditDelta(raw), nil
}

// Int64 exposes the raw value.
func (delta CreditDelta) Int64() int64 {
	return int64(delta)
}

// Negated flips the sign of the delta.
func (delta CreditDelta) Negated() CreditDelta {
	return -delta
}

// TransactionKind categorizes a transaction.
type TransactionKind string

const (
	KindReferral          TransactionKind = "referral"
	KindLoyalty           TransactionKind = "loyalty"
	KindSubscriptionGrant TransactionKind = "subscription_grant"
	KindPromotion         TransactionKind = "promotion"
	KindRefund            TransactionKind = "refund"
	KindAdjustment        TransactionKind = "adjustment"
	KindAIToolSpend       TransactionKind = "ai_tool_spend"
	KindRenderSpend       TransactionKind = "render_spend"
	KindRedemption        TransactionKind = "redemption"
)

// ParseTransactionKind validates a kind string.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	kind := TransactionKind(strings.ToLower(strings.TrimSpace(raw)))
	if kind.IsEarn() || kind.IsSpend() {
		return kind, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTransactionKind, raw)
}

// String returns the raw value.
func (kind TransactionKind) String() string {
	return string(kind)
}

// IsEarn reports whether the kind may credit an account.
func (kind TransactionKind) IsEarn() bool {
	switch kind {
	case KindReferral, KindLoyalty, KindSubscriptionGrant, KindPromotion, KindRefund, KindAdjustment:
		return true
	}
	return false
}

// IsSpend reports whether the kind may debit an account.
func (kind TransactionKind) IsSpend() bool {
	switch kind {
	case KindAIToolSpend, KindRenderSpend, KindRedemption, KindAdjustment:
		return true
	}
	return false
}

// ReservationStatus defines reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
)

// ParseReservationStatus validates a status string.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(strings.TrimSpace(raw))
	switch status {
	case ReservationStatusPending, ReservationStatusCommitted, ReservationStatusReleased, ReservationStatusExpired:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidReservationStatus, raw)
}

// String returns the raw value.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is allowed.
func (status ReservationStatus) IsTerminal() bool {
	return status != ReservationStatusPending
}
