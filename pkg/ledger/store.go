package ledger

import "context"

// Store is the persistence contract used by Service.
//
// Mutating calls made through the txStore handed to WithTx either all become visible
// or none do. GetAccountForUpdate must hold the account exclusively until the enclosing
// transaction ends on stores that support row locks.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// CreateAccount inserts a zero-balance account if absent.
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountID AccountID) (Account, error)
	GetAccountForUpdate(ctx context.Context, accountID AccountID) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error

	// AppendTransaction is the only write path into the log. It returns
	// ErrDuplicateIdempotencyKey when the key is already recorded.
	AppendTransaction(ctx context.Context, transaction Transaction) error
	FindTransactionByIdempotencyKey(ctx context.Context, key IdempotencyKey) (Transaction, bool, error)
	ListTransactions(ctx context.Context, accountID AccountID, beforeSequence int64, limit int) ([]Transaction, error)
	SumTransactions(ctx context.Context, accountID AccountID) (sum int64, count int64, err error)

	InsertReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	SumPendingUnexpired(ctx context.Context, accountID AccountID, atUnixUTC int64) (Credits, error)
	// TransitionReservation moves a reservation from one status to another and
	// fails with ErrReservationAlreadyProcessed when the current status is not from.
	TransitionReservation(ctx context.Context, reservation Reservation, from ReservationStatus) error
	ListExpiredReservations(ctx context.Context, atUnixUTC int64, limit int) ([]Reservation, error)
}
