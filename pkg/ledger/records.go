package ledger

import (
	"fmt"
	"math"
)

// Account is the materialized balance of one unified account.
type Account struct {
	accountID      AccountID
	balance        Credits
	lifetimeEarned Credits
	sequence       int64
	createdUnixUTC int64
	updatedUnixUTC int64
}

// NewAccount validates a stored account row.
func NewAccount(accountID AccountID, balance Credits, lifetimeEarned Credits, sequence int64, createdUnixUTC int64, updatedUnixUTC int64) (Account, error) {
	if accountID.IsZero() {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if balance < 0 || lifetimeEarned < 0 {
		return Account{}, fmt.Errorf("%w: negative account counters", ErrInvalidBalance)
	}
	if sequence < 0 {
		return Account{}, fmt.Errorf("%w: negative sequence", ErrInvalidBalance)
	}
	return Account{
		accountID:      accountID,
		balance:        balance,
		lifetimeEarned: lifetimeEarned,
		sequence:       sequence,
		createdUnixUTC: createdUnixUTC,
		updatedUnixUTC: updatedUnixUTC,
	}, nil
}

// OpenAccount returns a zero-balance account.
func OpenAccount(accountID AccountID, nowUnixUTC int64) (Account, error) {
	return NewAccount(accountID, 0, 0, 0, nowUnixUTC, nowUnixUTC)
}

func (account Account) AccountID() AccountID    { return account.accountID }
func (account Account) Balance() Credits        { return account.balance }
func (account Account) LifetimeEarned() Credits { return account.lifetimeEarned }
func (account Account) Sequence() int64         { return account.sequence }
func (account Account) CreatedUnixUTC() int64   { return account.createdUnixUTC }
func (account Account) UpdatedUnixUTC() int64   { return account.updatedUnixUTC }

// Credit returns the account after an earn of amount.
func (account Account) Credit(amount PositiveCredits, nowUnixUTC int64) (Account, error) {
	if account.balance.Int64() > math.MaxInt64-amount.Int64() || account.lifetimeEarned.Int64() > math.MaxInt64-amount.Int64() {
		return Account{}, WrapError(errorOperationAccount, errorSubjectBalance, errorCodeOverflow, ErrInvalidBalance)
	}
	updated := account
	updated.balance += amount.ToCredits()
	updated.lifetimeEarned += amount.ToCredits()
	updated.sequence++
	updated.updatedUnixUTC = nowUnixUTC
	return updated, nil
}

// Debit returns the account after removing amount. It never produces a negative balance.
func (account Account) Debit(amount PositiveCredits, nowUnixUTC int64) (Account, error) {
	if account.balance < amount.ToCredits() {
		return Account{}, WrapError(errorOperationAccount, errorSubjectBalance, errorCodeNegative, ErrInvalidBalance)
	}
	updated := account
	updated.balance -= amount.ToCredits()
	updated.sequence++
	updated.updatedUnixUTC = nowUnixUTC
	return updated, nil
}

// TransactionParams carries the fields of a transaction row.
type TransactionParams struct {
	TransactionID  TransactionID
	AccountID      AccountID
	Sequence       int64
	Amount         CreditDelta
	RunningBalance Credits
	Kind           TransactionKind
	SourcePlatform SourcePlatform
	IdempotencyKey IdempotencyKey
	ReservationID  ReservationID
	Reference      Reference
	Metadata       MetadataJSON
	CreatedUnixUTC int64
}

// Transaction is a single immutable line in the log.
type Transaction struct {
	params TransactionParams
}

// NewTransaction validates a transaction row.
func NewTransaction(params TransactionParams) (Transaction, error) {
	if params.TransactionID.value == "" {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	if params.AccountID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if params.Amount == 0 {
		return Transaction{}, fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	if params.RunningBalance < 0 {
		return Transaction{}, fmt.Errorf("%w: negative running balance", ErrInvalidBalance)
	}
	if params.Sequence <= 0 {
		return Transaction{}, fmt.Errorf("%w: sequence must be positive", ErrInvalidTransactionID)
	}
	if _, err := ParseTransactionKind(params.Kind.String()); err != nil {
		return Transaction{}, err
	}
	if params.SourcePlatform.value == "" {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidSourcePlatform)
	}
	params.Metadata = MetadataJSON{value: params.Metadata.String()}
	return Transaction{params: params}, nil
}

func (transaction Transaction) TransactionID() TransactionID   { return transaction.params.TransactionID }
func (transaction Transaction) AccountID() AccountID           { return transaction.params.AccountID }
func (transaction Transaction) Sequence() int64                { return transaction.params.Sequence }
func (transaction Transaction) Amount() CreditDelta            { return transaction.params.Amount }
func (transaction Transaction) RunningBalance() Credits        { return transaction.params.RunningBalance }
func (transaction Transaction) Kind() TransactionKind           { return transaction.params.Kind }
func (transaction Transaction) SourcePlatform() SourcePlatform { return transaction.params.SourcePlatform }
func (transaction Transaction) IdempotencyKey() IdempotencyKey { return transaction.params.IdempotencyKey }
func (transaction Transaction) ReservationID() ReservationID   { return transaction.params.ReservationID }
func (transaction Transaction) Reference() Reference           { return transaction.params.Reference }
func (transaction Transaction) Metadata() MetadataJSON         { return transaction.params.Metadata }
func (transaction Transaction) CreatedUnixUTC() int64          { return transaction.params.CreatedUnixUTC }

// ReservationParams carries the fields of a reservation row.
type ReservationParams struct {
	ReservationID    ReservationID
	AccountID        AccountID
	Amount           PositiveCredits
	Purpose          string
	SourcePlatform   SourcePlatform
	Status           ReservationStatus
	Reference        Reference
	Metadata         MetadataJSON
	ExpiresAtUnixUTC int64
	CreatedUnixUTC   int64
	CommittedUnixUTC int64
	ReleasedUnixUTC  int64
}

// Reservation is a time-boxed hold against an account's available balance.
type Reservation struct {
	params ReservationParams
}

// NewReservation validates a reservation row.
func NewReservation(params ReservationParams) (Reservation, error) {
	if params.ReservationID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	if params.AccountID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if params.Amount <= 0 {
		return Reservation{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if params.Purpose == "" {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidPurpose)
	}
	if params.SourcePlatform.value == "" {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidSourcePlatform)
	}
	if _, err := ParseReservationStatus(params.Status.String()); err != nil {
		return Reservation{}, err
	}
	if params.ExpiresAtUnixUTC <= params.CreatedUnixUTC {
		return Reservation{}, fmt.Errorf("%w: expiry must follow creation", ErrInvalidReservationExpiry)
	}
	params.Metadata = MetadataJSON{value: params.Metadata.String()}
	return Reservation{params: params}, nil
}

func (reservation Reservation) ReservationID() ReservationID   { return reservation.params.ReservationID }
func (reservation Reservation) AccountID() AccountID           { return reservation.params.AccountID }
func (reservation Reservation) Amount() PositiveCredits        { return reservation.params.Amount }
func (reservation Reservation) Purpose() string                { return reservation.params.Purpose }
func (reservation Reservation) SourcePlatform() SourcePlatform { return reservation.params.SourcePlatform }
func (reservation Reservation) Status() ReservationStatus      { return reservation.params.Status }
func (reservation Reservation) Reference() Reference           { return reservation.params.Reference }
func (reservation Reservation) Metadata() MetadataJSON         { return reservation.params.Metadata }
func (reservation Reservation) ExpiresAtUnixUTC() int64        { return reservation.params.ExpiresAtUnixUTC }
func (reservation Reservation) CreatedUnixUTC() int64          { return reservation.params.CreatedUnixUTC }
func (reservation Reservation) CommittedUnixUTC() int64        { return reservation.params.CommittedUnixUTC }
func (reservation Reservation) ReleasedUnixUTC() int64         { return reservation.params.ReleasedUnixUTC }

// Params returns a copy of the underlying fields.
func (reservation Reservation) Params() ReservationParams {
	return reservation.params
}

// IsHolding reports whether the reservation still narrows availability at the given instant.
func (reservation Reservation) IsHolding(atUnixUTC int64) bool {
	return reservation.params.Status == ReservationStatusPending && reservation.params.ExpiresAtUnixUTC > atUnixUTC
}

// Transitioned returns the reservation moved from pending to the given terminal status.
func (reservation Reservation) Transitioned(to ReservationStatus, atUnixUTC int64) (Reservation, error) {
	if reservation.params.Status != ReservationStatusPending {
		return Reservation{}, fmt.Errorf("%w: status %s", ErrReservationAlreadyProcessed, reservation.params.Status)
	}
	updated := reservation
	updated.params.Status = to
	switch to {
	case ReservationStatusCommitted:
		updated.params.CommittedUnixUTC = atUnixUTC
	case ReservationStatusReleased, ReservationStatusExpired:
		updated.params.ReleasedUnixUTC = atUnixUTC
	default:
		return Reservation{}, fmt.Errorf("%w: cannot transition to %q", ErrInvalidReservationStatus, to)
	}
	return updated, nil
}

// Receipt is the outcome of a balance-changing operation.
type Receipt struct {
	TransactionID TransactionID
	AccountID     AccountID
	Balance       Credits
	Replayed      bool
}

// AccountBalance is the balance view for an account.
type AccountBalance struct {
	AccountID      AccountID
	Total          Credits
	Pending        Credits
	Available      Credits
	LifetimeEarned Credits
}

// Reconciliation compares the materialized balance with the log it caches.
type Reconciliation struct {
	AccountID        AccountID
	Materialized     Credits
	Recomputed       int64
	TransactionCount int64
}

// Consistent reports whether the materialized balance equals the log sum.
func (reconciliation Reconciliation) Consistent() bool {
	return reconciliation.Materialized.Int64() == reconciliation.Recomputed
}
