// Package memstore keeps the ledger in process memory. Writes made inside WithTx
// are staged and applied atomically when fn returns nil.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

const (
	errorOperationStore     = "memstore"
	errorSubjectAccount     = "account"
	errorSubjectTransaction = "transaction"
	errorSubjectReservation = "reservation"
	errorCodeDuplicate      = "duplicate"
	errorCodeMissing        = "missing"
	errorCodeStale          = "stale"
)

// Store implements ledger.Store in memory.
type Store struct {
	mutex                 sync.RWMutex
	accounts              map[ledger.AccountID]ledger.Account
	transactions          []ledger.Transaction
	transactionsByKey     map[ledger.IdempotencyKey]int
	transactionsByAccount map[ledger.AccountID][]int
	reservations          map[ledger.ReservationID]ledger.Reservation
	reservationsByAccount map[ledger.AccountID][]ledger.ReservationID
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:              make(map[ledger.AccountID]ledger.Account),
		transactionsByKey:     make(map[ledger.IdempotencyKey]int),
		transactionsByAccount: make(map[ledger.AccountID][]int),
		reservations:          make(map[ledger.ReservationID]ledger.Reservation),
		reservationsByAccount: make(map[ledger.AccountID][]ledger.ReservationID),
	}
}

// WithTx stages every write made through txStore and applies them together.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	transaction := newTxStore(store)
	if err := fn(ctx, transaction); err != nil {
		return err
	}
	return store.apply(transaction)
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return txStore.CreateAccount(ctx, account)
	})
}

func (store *Store) GetAccount(_ context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	return store.accountLocked(accountID)
}

// GetAccountForUpdate has no row lock to take; callers serialize through ledger.AccountLocker.
func (store *Store) GetAccountForUpdate(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return store.GetAccount(ctx, accountID)
}

func (store *Store) UpdateAccount(ctx context.Context, account ledger.Account) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return txStore.UpdateAccount(ctx, account)
	})
}

func (store *Store) AppendTransaction(ctx context.Context, transaction ledger.Transaction) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return txStore.AppendTransaction(ctx, transaction)
	})
}

func (store *Store) FindTransactionByIdempotencyKey(_ context.Context, key ledger.IdempotencyKey) (ledger.Transaction, bool, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	index, ok := store.transactionsByKey[key]
	if !ok || key.IsZero() {
		return ledger.Transaction{}, false, nil
	}
	return store.transactions[index], true, nil
}

func (store *Store) ListTransactions(_ context.Context, accountID ledger.AccountID, beforeSequence int64, limit int) ([]ledger.Transaction, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	indexes := store.transactionsByAccount[accountID]
	result := make([]ledger.Transaction, 0, limit)
	for position := len(indexes) - 1; position >= 0 && len(result) < limit; position-- {
		transaction := store.transactions[indexes[position]]
		if beforeSequence > 0 && transaction.Sequence() >= beforeSequence {
			continue
		}
		result = append(result, transaction)
	}
	return result, nil
}

func (store *Store) SumTransactions(_ context.Context, accountID ledger.AccountID) (int64, int64, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	var sum int64
	indexes := store.transactionsByAccount[accountID]
	for _, index := range indexes {
		sum += store.transactions[index].Amount().Int64()
	}
	return sum, int64(len(indexes)), nil
}

func (store *Store) InsertReservation(ctx context.Context, reservation ledger.Reservation) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return txStore.InsertReservation(ctx, reservation)
	})
}

func (store *Store) GetReservation(_ context.Context, reservationID ledger.ReservationID) (ledger.Reservation, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	reservation, ok := store.reservations[reservationID]
	if !ok {
		return ledger.Reservation{}, ledger.ErrReservationNotFound
	}
	return reservation, nil
}

func (store *Store) SumPendingUnexpired(_ context.Context, accountID ledger.AccountID, atUnixUTC int64) (ledger.Credits, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	var sum int64
	for _, reservationID := range store.reservationsByAccount[accountID] {
		if reservation := store.reservations[reservationID]; reservation.IsHolding(atUnixUTC) {
			sum += reservation.Amount().Int64()
		}
	}
	return ledger.NewCredits(sum)
}

func (store *Store) TransitionReservation(ctx context.Context, reservation ledger.Reservation, from ledger.ReservationStatus) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return txStore.TransitionReservation(ctx, reservation, from)
	})
}

func (store *Store) ListExpiredReservations(_ context.Context, atUnixUTC int64, limit int) ([]ledger.Reservation, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()
	var expired []ledger.Reservation
	for _, reservation := range store.reservations {
		if reservation.Status() == ledger.ReservationStatusPending && reservation.ExpiresAtUnixUTC() <= atUnixUTC {
			expired = append(expired, reservation)
		}
	}
	sort.Slice(expired, func(left, right int) bool {
		return expired[left].ExpiresAtUnixUTC() < expired[right].ExpiresAtUnixUTC()
	})
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (store *Store) accountLocked(accountID ledger.AccountID) (ledger.Account, error) {
	account, ok := store.accounts[accountID]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return account, nil
}

// apply validates the staged writes against committed state and publishes them.
func (store *Store) apply(transaction *txStore) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	for _, staged := range transaction.transactions {
		if key := staged.IdempotencyKey(); !key.IsZero() {
			if _, exists := store.transactionsByKey[key]; exists {
				return ledger.WrapError(errorOperationStore, errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
			}
		}
	}
	for reservationID := range transaction.insertedReservations {
		if _, exists := store.reservations[reservationID]; exists {
			return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeDuplicate, ledger.ErrReservationExists)
		}
	}
	for reservationID, from := range transaction.transitionedFrom {
		current, ok := store.reservations[reservationID]
		if !ok {
			return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeMissing, ledger.ErrReservationNotFound)
		}
		if current.Status() != from {
			return ledger.WrapError(errorOperationStore, errorSubjectReservation, errorCodeStale, ledger.ErrReservationAlreadyProcessed)
		}
	}
	for accountID, expectedSequence := range transaction.readSequences {
		if _, updated := transaction.accounts[accountID]; !updated {
			continue
		}
		if current, ok := store.accounts[accountID]; ok && current.Sequence() != expectedSequence {
			return ledger.WrapError(errorOperationStore, errorSubjectAccount, errorCodeStale, ledger.ErrAccountLockTimeout)
		}
	}

	for accountID, account := range transaction.accounts {
		if _, exists := store.accounts[accountID]; exists && transaction.createdOnly[accountID] {
			continue
		}
		store.accounts[accountID] = account
	}
	for _, staged := range transaction.transactions {
		index := len(store.transactions)
		store.transactions = append(store.transactions, staged)
		store.transactionsByAccount[staged.AccountID()] = append(store.transactionsByAccount[staged.AccountID()], index)
		if key := staged.IdempotencyKey(); !key.IsZero() {
			store.transactionsByKey[key] = index
		}
	}
	for reservationID, reservation := range transaction.reservations {
		if _, inserted := transaction.insertedReservations[reservationID]; inserted {
			store.reservationsByAccount[reservation.AccountID()] = append(store.reservationsByAccount[reservation.AccountID()], reservationID)
		}
		store.reservations[reservationID] = reservation
	}
	return nil
}
