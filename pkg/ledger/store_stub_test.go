package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

type stubState struct {
	accounts     map[AccountID]Account
	transactions []Transaction
	reservations map[ReservationID]Reservation
}

func (state *stubState) clone() *stubState {
	cloned := &stubState{
		accounts:     make(map[AccountID]Account, len(state.accounts)),
		transactions: append([]Transaction(nil), state.transactions...),
		reservations: make(map[ReservationID]Reservation, len(state.reservations)),
	}
	for id, account := range state.accounts {
		cloned.accounts[id] = account
	}
	for id, reservation := range state.reservations {
		cloned.reservations[id] = reservation
	}
	return cloned
}

// stubFailures injects errors into individual store calls.
type stubFailures struct {
	getAccount        error
	appendTransaction error
	insertReservation error
	getReservation    error
	transition        error
	sumPending        error
	listExpired       error
	findKey           error
	listTransactions  error
	sumTransactions   error
}

// stubStore is a mutex-guarded Store that rolls back on error. Calls made
// through the txStore handed to WithTx run while the outer mutex is held.
type stubStore struct {
	mutex    *sync.Mutex
	state    *stubState
	failures *stubFailures
	inTx     bool
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		mutex: &sync.Mutex{},
		state: &stubState{
			accounts:     make(map[AccountID]Account),
			reservations: make(map[ReservationID]Reservation),
		},
		failures: &stubFailures{},
	}
}

func (store *stubStore) guard() func() {
	if store.inTx {
		return func() {}
	}
	store.mutex.Lock()
	return store.mutex.Unlock
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	snapshot := store.state.clone()
	txStore := &stubStore{mutex: store.mutex, state: store.state, failures: store.failures, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		*store.state = *snapshot
		return err
	}
	return nil
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) error {
	defer store.guard()()
	if _, exists := store.state.accounts[account.AccountID()]; !exists {
		store.state.accounts[account.AccountID()] = account
	}
	return nil
}

func (store *stubStore) GetAccount(_ context.Context, accountID AccountID) (Account, error) {
	defer store.guard()()
	if store.failures.getAccount != nil {
		return Account{}, store.failures.getAccount
	}
	account, ok := store.state.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, accountID AccountID) (Account, error) {
	return store.GetAccount(ctx, accountID)
}

func (store *stubStore) UpdateAccount(_ context.Context, account Account) error {
	defer store.guard()()
	if _, ok := store.state.accounts[account.AccountID()]; !ok {
		return ErrAccountNotFound
	}
	store.state.accounts[account.AccountID()] = account
	return nil
}

func (store *stubStore) AppendTransaction(_ context.Context, transaction Transaction) error {
	defer store.guard()()
	if store.failures.appendTransaction != nil {
		return store.failures.appendTransaction
	}
	if !transaction.IdempotencyKey().IsZero() {
		for _, existing := range store.state.transactions {
			if existing.IdempotencyKey() == transaction.IdempotencyKey() {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	store.state.transactions = append(store.state.transactions, transaction)
	return nil
}

func (store *stubStore) FindTransactionByIdempotencyKey(_ context.Context, key IdempotencyKey) (Transaction, bool, error) {
	defer store.guard()()
	if store.failures.findKey != nil {
		return Transaction{}, false, store.failures.findKey
	}
	for _, existing := range store.state.transactions {
		if existing.IdempotencyKey() == key {
			return existing, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (store *stubStore) ListTransactions(_ context.Context, accountID AccountID, beforeSequence int64, limit int) ([]Transaction, error) {
	defer store.guard()()
	if store.failures.listTransactions != nil {
		return nil, store.failures.listTransactions
	}
	var result []Transaction
	for _, transaction := range store.state.transactions {
		if transaction.AccountID() != accountID {
			continue
		}
		if beforeSequence > 0 && transaction.Sequence() >= beforeSequence {
			continue
		}
		result = append(result, transaction)
	}
	sort.Slice(result, func(left, right int) bool {
		return result[left].Sequence() > result[right].Sequence()
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (store *stubStore) SumTransactions(_ context.Context, accountID AccountID) (int64, int64, error) {
	defer store.guard()()
	if store.failures.sumTransactions != nil {
		return 0, 0, store.failures.sumTransactions
	}
	var sum, count int64
	for _, transaction := range store.state.transactions {
		if transaction.AccountID() == accountID {
			sum += transaction.Amount().Int64()
			count++
		}
	}
	return sum, count, nil
}

func (store *stubStore) InsertReservation(_ context.Context, reservation Reservation) error {
	defer store.guard()()
	if store.failures.insertReservation != nil {
		return store.failures.insertReservation
	}
	if _, exists := store.state.reservations[reservation.ReservationID()]; exists {
		return ErrReservationExists
	}
	store.state.reservations[reservation.ReservationID()] = reservation
	return nil
}

func (store *stubStore) GetReservation(_ context.Context, reservationID ReservationID) (Reservation, error) {
	defer store.guard()()
	if store.failures.getReservation != nil {
		return Reservation{}, store.failures.getReservation
	}
	reservation, ok := store.state.reservations[reservationID]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return reservation, nil
}

func (store *stubStore) SumPendingUnexpired(_ context.Context, accountID AccountID, atUnixUTC int64) (Credits, error) {
	defer store.guard()()
	if store.failures.sumPending != nil {
		return 0, store.failures.sumPending
	}
	var sum int64
	for _, reservation := range store.state.reservations {
		if reservation.AccountID() == accountID && reservation.IsHolding(atUnixUTC) {
			sum += reservation.Amount().Int64()
		}
	}
	return NewCredits(sum)
}

func (store *stubStore) TransitionReservation(_ context.Context, reservation Reservation, from ReservationStatus) error {
	defer store.guard()()
	if store.failures.transition != nil {
		return store.failures.transition
	}
	current, ok := store.state.reservations[reservation.ReservationID()]
	if !ok {
		return ErrReservationNotFound
	}
	if current.Status() != from {
		return ErrReservationAlreadyProcessed
	}
	store.state.reservations[reservation.ReservationID()] = reservation
	return nil
}

func (store *stubStore) ListExpiredReservations(_ context.Context, atUnixUTC int64, limit int) ([]Reservation, error) {
	defer store.guard()()
	if store.failures.listExpired != nil {
		return nil, store.failures.listExpired
	}
	var result []Reservation
	for _, reservation := range store.state.reservations {
		if reservation.Status() == ReservationStatusPending && reservation.ExpiresAtUnixUTC() <= atUnixUTC {
			result = append(result, reservation)
		}
	}
	sort.Slice(result, func(left, right int) bool {
		return result[left].ExpiresAtUnixUTC() < result[right].ExpiresAtUnixUTC()
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (store *stubStore) transactionsFor(accountID AccountID) []Transaction {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var result []Transaction
	for _, transaction := range store.state.transactions {
		if transaction.AccountID() == accountID {
			result = append(result, transaction)
		}
	}
	return result
}

func (store *stubStore) mustAccount(test *testing.T, accountID AccountID) Account {
	test.Helper()
	account, err := store.GetAccount(context.Background(), accountID)
	if err != nil {
		test.Fatalf("account %s: %v", accountID.String(), err)
	}
	return account
}

// assertBalanceInvariant checks that the materialized balance equals the log sum.
func (store *stubStore) assertBalanceInvariant(test *testing.T, accountID AccountID) {
	test.Helper()
	account := store.mustAccount(test, accountID)
	sum, _, err := store.SumTransactions(context.Background(), accountID)
	if err != nil {
		test.Fatalf("sum transactions: %v", err)
	}
	if account.Balance().Int64() != sum {
		test.Fatalf("balance %d diverged from log sum %d", account.Balance(), sum)
	}
	if account.Balance() < 0 {
		test.Fatalf("negative balance %d", account.Balance())
	}
}

type testClock struct {
	now atomic.Int64
}

func newTestClock(start int64) *testClock {
	clock := &testClock{}
	clock.now.Store(start)
	return clock
}

func (clock *testClock) Now() int64 {
	return clock.now.Load()
}

func (clock *testClock) Advance(seconds int64) {
	clock.now.Add(seconds)
}

func mustNewService(test *testing.T, store Store, clock *testClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, clock.Now, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustReservationID(test *testing.T, raw string) ReservationID {
	test.Helper()
	reservationID, err := NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return reservationID
}

func mustTransactionID(test *testing.T, raw string) TransactionID {
	test.Helper()
	transactionID, err := NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id: %v", err)
	}
	return transactionID
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return key
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return metadata
}

func mustPositive(test *testing.T, raw int64) PositiveCredits {
	test.Helper()
	amount, err := NewPositiveCredits(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func mustPlatform(test *testing.T, raw string) SourcePlatform {
	test.Helper()
	platform, err := NewSourcePlatform(raw)
	if err != nil {
		test.Fatalf("platform: %v", err)
	}
	return platform
}

func mustEarn(test *testing.T, service *Service, accountID AccountID, amount int64) Receipt {
	test.Helper()
	receipt, err := service.Earn(context.Background(), EarnRequest{
		AccountID:      accountID,
		Amount:         mustPositive(test, amount),
		Kind:           KindLoyalty,
		SourcePlatform: mustPlatform(test, "marketplace"),
	})
	if err != nil {
		test.Fatalf("earn: %v", err)
	}
	return receipt
}

func mustReserve(test *testing.T, service *Service, accountID AccountID, amount int64) Reservation {
	test.Helper()
	reservation, err := service.Reserve(context.Background(), ReserveRequest{
		AccountID:      accountID,
		Amount:         mustPositive(test, amount),
		Purpose:        "render",
		SourcePlatform: mustPlatform(test, "studio"),
	})
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	return reservation
}

func spendRequest(test *testing.T, accountID AccountID, amount int64) SpendRequest {
	test.Helper()
	return SpendRequest{
		AccountID:      accountID,
		Amount:         mustPositive(test, amount),
		Kind:           KindAIToolSpend,
		SourcePlatform: mustPlatform(test, "studio"),
	}
}

func mustAvailable(test *testing.T, service *Service, accountID AccountID) Credits {
	test.Helper()
	balance, err := service.Balance(context.Background(), accountID)
	if err != nil {
		test.Fatalf("balance: %v", err)
	}
	return balance.Available
}
