package memstore

import (
	"context"
	"sort"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

// txStore overlays staged writes on the committed state of its parent.
type txStore struct {
	parent               *Store
	accounts             map[ledger.AccountID]ledger.Account
	createdOnly          map[ledger.AccountID]bool
	readSequences        map[ledger.AccountID]int64
	transactions         []ledger.Transaction
	reservations         map[ledger.ReservationID]ledger.Reservation
	insertedReservations map[ledger.ReservationID]struct{}
	transitionedFrom     map[ledger.ReservationID]ledger.ReservationStatus
}

func newTxStore(parent *Store) *txStore {
	return &txStore{
		parent:               parent,
		accounts:             make(map[ledger.AccountID]ledger.Account),
		createdOnly:          make(map[ledger.AccountID]bool),
		readSequences:        make(map[ledger.AccountID]int64),
		reservations:         make(map[ledger.ReservationID]ledger.Reservation),
		insertedReservations: make(map[ledger.ReservationID]struct{}),
		transitionedFrom:     make(map[ledger.ReservationID]ledger.ReservationStatus),
	}
}

// WithTx joins the enclosing transaction.
func (tx *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, tx)
}

func (tx *txStore) CreateAccount(ctx context.Context, account ledger.Account) error {
	if _, err := tx.GetAccount(ctx, account.AccountID()); err == nil {
		return nil
	}
	tx.accounts[account.AccountID()] = account
	tx.createdOnly[account.AccountID()] = true
	return nil
}

func (tx *txStore) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	if account, ok := tx.accounts[accountID]; ok {
		return account, nil
	}
	return tx.parent.GetAccount(ctx, accountID)
}

func (tx *txStore) GetAccountForUpdate(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	if _, seen := tx.readSequences[accountID]; !seen && !tx.createdOnly[accountID] {
		tx.readSequences[accountID] = account.Sequence()
	}
	return account, nil
}

func (tx *txStore) UpdateAccount(ctx context.Context, account ledger.Account) error {
	if _, err := tx.GetAccount(ctx, account.AccountID()); err != nil {
		return ledger.WrapError(errorOperationStore, errorSubjectAccount, errorCodeMissing, err)
	}
	tx.accounts[account.AccountID()] = account
	tx.createdOnly[account.AccountID()] = false
	return nil
}

func (tx *txStore) AppendTransaction(ctx context.Context, transaction ledger.Transaction) error {
	if key := transaction.IdempotencyKey(); !key.IsZero() {
		if _, found, _ := tx.FindTransactionByIdempotencyKey(ctx, key); found {
			return ledger.WrapError(errorOperationStore, errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
		}
	}
	tx.transactions = append(tx.transactions, transaction)
	return nil
}

func (tx *txStore) FindTransactionByIdempotencyKey(ctx context.Context, key ledger.IdempotencyKey) (ledger.Transaction, bool, error) {
	for _, staged := range tx.transactions {
		if !key.IsZero() && staged.IdempotencyKey() == key {
			return staged, true, nil
		}
	}
	return tx.parent.FindTransactionByIdempotencyKey(ctx, key)
}

func (tx *txStore) ListTransactions(ctx context.Context, accountID ledger.AccountID, beforeSequence int64, limit int) ([]ledger.Transaction, error) {
	committed, err := tx.parent.ListTransactions(ctx, accountID, beforeSequence, limit)
	if err != nil {
		return nil, err
	}
	merged := committed
	for _, staged := range tx.transactions {
		if staged.AccountID() == accountID && (beforeSequence <= 0 || staged.Sequence() < beforeSequence) {
			merged = append(merged, staged)
		}
	}
	sort.Slice(merged, func(left, right int) bool {
		return merged[left].Sequence() > merged[right].Sequence()
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (tx *txStore) SumTransactions(ctx context.Context, accountID ledger.AccountID) (int64, int64, error) {
	sum, count, err := tx.parent.SumTransactions(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	for _, staged := range tx.transactions {
		if staged.AccountID() == accountID {
			sum += staged.Amount().Int64()
			count++
		}
	}
	return sum, count, nil
}

func (tx *txStore) InsertReservation(ctx context.Context, reservation ledger.Reservation) error {
	if _, err := tx.GetReservation(ctx, reservation.ReservationID()); err == nil {
		return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeDuplicate, ledger.ErrReservationExists)
	}
	tx.reservations[reservation.ReservationID()] = reservation
	tx.insertedReservations[reservation.ReservationID()] = struct{}{}
	return nil
}

func (tx *txStore) GetReservation(ctx context.Context, reservationID ledger.ReservationID) (ledger.Reservation, error) {
	if reservation, ok := tx.reservations[reservationID]; ok {
		return reservation, nil
	}
	return tx.parent.GetReservation(ctx, reservationID)
}

func (tx *txStore) SumPendingUnexpired(ctx context.Context, accountID ledger.AccountID, atUnixUTC int64) (ledger.Credits, error) {
	committed, err := tx.parent.SumPendingUnexpired(ctx, accountID, atUnixUTC)
	if err != nil {
		return 0, err
	}
	sum := committed.Int64()
	for reservationID, staged := range tx.reservations {
		if staged.AccountID() != accountID {
			continue
		}
		if _, inserted := tx.insertedReservations[reservationID]; !inserted {
			if previous, err := tx.parent.GetReservation(ctx, reservationID); err == nil && previous.IsHolding(atUnixUTC) {
				sum -= previous.Amount().Int64()
			}
		}
		if staged.IsHolding(atUnixUTC) {
			sum += staged.Amount().Int64()
		}
	}
	return ledger.NewCredits(sum)
}

func (tx *txStore) TransitionReservation(ctx context.Context, reservation ledger.Reservation, from ledger.ReservationStatus) error {
	current, err := tx.GetReservation(ctx, reservation.ReservationID())
	if err != nil {
		return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeMissing, err)
	}
	if current.Status() != from {
		return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeStale, ledger.ErrReservationAlreadyProcessed)
	}
	reservationID := reservation.ReservationID()
	tx.reservations[reservationID] = reservation
	if _, inserted := tx.insertedReservations[reservationID]; !inserted {
		if _, tracked := tx.transitionedFrom[reservationID]; !tracked {
			tx.transitionedFrom[reservationID] = from
		}
	}
	return nil
}

func (tx *txStore) ListExpiredReservations(ctx context.Context, atUnixUTC int64, limit int) ([]ledger.Reservation, error) {
	committed, err := tx.parent.ListExpiredReservations(ctx, atUnixUTC, limit)
	if err != nil {
		return nil, err
	}
	var expired []ledger.Reservation
	for _, reservation := range committed {
		if _, staged := tx.reservations[reservation.ReservationID()]; !staged {
			expired = append(expired, reservation)
		}
	}
	for _, staged := range tx.reservations {
		if staged.Status() == ledger.ReservationStatusPending && staged.ExpiresAtUnixUTC() <= atUnixUTC {
			expired = append(expired, staged)
		}
	}
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}
