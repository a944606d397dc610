package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service is the ledger engine: earn, spend, reserve, commit, release and sweep over a Store.
type Service struct {
	store          Store
	nowFn          func() int64
	logger         OperationLogger
	locker         AccountLocker
	newID          func() string
	reservationTTL time.Duration
	sweepBatchSize int
	autoCreate     bool
}

// EarnRequest credits an account.
type EarnRequest struct {
	AccountID      AccountID
	Amount         PositiveCredits
	Kind           TransactionKind
	SourcePlatform SourcePlatform
	IdempotencyKey IdempotencyKey
	Reference      Reference
	Metadata       MetadataJSON
}

// SpendRequest debits an account without a prior reservation.
type SpendRequest struct {
	AccountID      AccountID
	Amount         PositiveCredits
	Kind           TransactionKind
	SourcePlatform SourcePlatform
	IdempotencyKey IdempotencyKey
	Reference      Reference
	Metadata       MetadataJSON
}

// ReserveRequest places a hold against an account's available balance.
type ReserveRequest struct {
	AccountID      AccountID
	Amount         PositiveCredits
	Purpose        string
	SourcePlatform SourcePlatform
	Reference      Reference
	Metadata       MetadataJSON
	// TTL overrides the service default when positive.
	TTL time.Duration
}

// CommitRequest spends a pending reservation. Kind is required.
type CommitRequest struct {
	ReservationID ReservationID
	Kind          TransactionKind
	// IdempotencyKey replays only a commit of the same reservation; a key already
	// used for another reservation fails with ErrDuplicateIdempotencyKeyConflict.
	IdempotencyKey IdempotencyKey
	Metadata       MetadataJSON
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:          store,
		nowFn:          now,
		locker:         NewKeyedLocker(DefaultLockTimeout),
		newID:          defaultIDGenerator,
		reservationTTL: DefaultReservationTTL,
		sweepBatchSize: DefaultSweepBatchSize,
		autoCreate:     true,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Earn credits the account and increments its lifetime-earned counter.
func (service *Service) Earn(ctx context.Context, request EarnRequest) (Receipt, error) {
	startedAt := time.Now()
	receipt, operationError := service.earn(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:      operationEarn,
		AccountID:      request.AccountID,
		TransactionID:  receipt.TransactionID,
		Amount:         request.Amount.Int64(),
		Kind:           request.Kind,
		IdempotencyKey: request.IdempotencyKey,
		Status:         replayStatus(receipt),
		Error:          operationError,
		Duration:       time.Since(startedAt),
	})
	return receipt, operationError
}

// Spend debits the account's available balance immediately (no hold).
func (service *Service) Spend(ctx context.Context, request SpendRequest) (Receipt, error) {
	startedAt := time.Now()
	receipt, operationError := service.spend(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:      operationSpend,
		AccountID:      request.AccountID,
		TransactionID:  receipt.TransactionID,
		Amount:         request.Amount.Int64(),
		Kind:           request.Kind,
		IdempotencyKey: request.IdempotencyKey,
		Status:         replayStatus(receipt),
		Error:          operationError,
		Duration:       time.Since(startedAt),
	})
	return receipt, operationError
}

// Reserve holds credits for a later Commit or Release. The account balance is not touched.
func (service *Service) Reserve(ctx context.Context, request ReserveRequest) (Reservation, error) {
	startedAt := time.Now()
	reservation, operationError := service.reserve(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:     operationReserve,
		AccountID:     request.AccountID,
		ReservationID: reservation.ReservationID(),
		Amount:        request.Amount.Int64(),
		Error:         operationError,
		Duration:      time.Since(startedAt),
	})
	return reservation, operationError
}

// Commit spends a pending, unexpired reservation.
func (service *Service) Commit(ctx context.Context, request CommitRequest) (Receipt, error) {
	startedAt := time.Now()
	receipt, amount, operationError := service.commit(ctx, request)
	service.logOperation(ctx, OperationLog{
		Operation:      operationCommit,
		AccountID:      receipt.AccountID,
		ReservationID:  request.ReservationID,
		TransactionID:  receipt.TransactionID,
		Amount:         amount,
		Kind:           request.Kind,
		IdempotencyKey: request.IdempotencyKey,
		Status:         replayStatus(receipt),
		Error:          operationError,
		Duration:       time.Since(startedAt),
	})
	return receipt, operationError
}

// Release cancels a pending reservation without spending. Releasing an already
// released reservation succeeds; releasing a committed or expired one fails with
// ErrReservationAlreadyProcessed.
func (service *Service) Release(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	startedAt := time.Now()
	released, loaded, operationError := service.release(ctx, reservationID)
	service.logOperation(ctx, OperationLog{
		Operation:     operationRelease,
		AccountID:     loaded.AccountID(),
		ReservationID: reservationID,
		Amount:        loaded.Amount().Int64(),
		Error:         operationError,
		Duration:      time.Since(startedAt),
	})
	return released, operationError
}

// SweepExpired marks every pending reservation past its expiry as expired and returns how many it moved.
func (service *Service) SweepExpired(ctx context.Context) (int, error) {
	startedAt := time.Now()
	expiredCount, operationError := service.sweepExpired(ctx)
	service.logOperation(ctx, OperationLog{
		Operation: operationSweep,
		Count:     expiredCount,
		Error:     operationError,
		Duration:  time.Since(startedAt),
	})
	return expiredCount, operationError
}

func (service *Service) earn(ctx context.Context, request EarnRequest) (Receipt, error) {
	if err := validateMovement(request.AccountID, request.Amount, request.SourcePlatform); err != nil {
		return Receipt{}, err
	}
	if !request.Kind.IsEarn() {
		return Receipt{}, fmt.Errorf("%w: %q cannot credit an account", ErrInvalidTransactionKind, request.Kind)
	}
	intent := transactionIntent{accountID: request.AccountID, amount: request.Amount.ToDelta(), kind: request.Kind}
	return service.applyMovement(ctx, request.IdempotencyKey, intent, func(ctx context.Context, txStore Store, account Account, nowUnixUTC int64) (Receipt, error) {
		updated, err := account.Credit(request.Amount, nowUnixUTC)
		if err != nil {
			return Receipt{}, err
		}
		transaction, err := service.record(ctx, txStore, updated, TransactionParams{
			Amount:         request.Amount.ToDelta(),
			Kind:           request.Kind,
			SourcePlatform: request.SourcePlatform,
			IdempotencyKey: request.IdempotencyKey,
			Reference:      request.Reference,
			Metadata:       request.Metadata,
			CreatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return Receipt{}, err
		}
		return receiptFor(transaction, false), nil
	})
}

func (service *Service) spend(ctx context.Context, request SpendRequest) (Receipt, error) {
	if err := validateMovement(request.AccountID, request.Amount, request.SourcePlatform); err != nil {
		return Receipt{}, err
	}
	if !request.Kind.IsSpend() {
		return Receipt{}, fmt.Errorf("%w: %q cannot debit an account", ErrInvalidTransactionKind, request.Kind)
	}
	intent := transactionIntent{accountID: request.AccountID, amount: request.Amount.ToDelta().Negated(), kind: request.Kind}
	return service.applyMovement(ctx, request.IdempotencyKey, intent, func(ctx context.Context, txStore Store, account Account, nowUnixUTC int64) (Receipt, error) {
		if err := service.ensureAvailable(ctx, txStore, account, request.Amount, nowUnixUTC); err != nil {
			return Receipt{}, err
		}
		updated, err := account.Debit(request.Amount, nowUnixUTC)
		if err != nil {
			return Receipt{}, err
		}
		transaction, err := service.record(ctx, txStore, updated, TransactionParams{
			Amount:         request.Amount.ToDelta().Negated(),
			Kind:           request.Kind,
			SourcePlatform: request.SourcePlatform,
			IdempotencyKey: request.IdempotencyKey,
			Reference:      request.Reference,
			Metadata:       request.Metadata,
			CreatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return Receipt{}, err
		}
		return receiptFor(transaction, false), nil
	})
}

type movementFunc func(ctx context.Context, txStore Store, account Account, nowUnixUTC int64) (Receipt, error)

// applyMovement runs the idempotency pre-check, then apply under the account lock,
// re-checking the key once the lock is held. A unique-key violation raised by a racing
// retry is resolved into a replay of the winner's outcome.
func (service *Service) applyMovement(ctx context.Context, idempotencyKey IdempotencyKey, intent transactionIntent, apply movementFunc) (Receipt, error) {
	if receipt, found, err := service.replay(ctx, service.store, idempotencyKey, intent); err != nil || found {
		return receipt, err
	}
	var receipt Receipt
	err := service.withLockedAccount(ctx, intent.accountID, func(ctx context.Context, txStore Store, account Account) error {
		replayed, found, err := service.replay(ctx, txStore, idempotencyKey, intent)
		if err != nil {
			return err
		}
		if found {
			receipt = replayed
			return nil
		}
		receipt, err = apply(ctx, txStore, account, service.nowFn())
		return err
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return service.resolveDuplicate(ctx, idempotencyKey, intent)
	}
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (service *Service) reserve(ctx context.Context, request ReserveRequest) (Reservation, error) {
	if err := validateMovement(request.AccountID, request.Amount, request.SourcePlatform); err != nil {
		return Reservation{}, err
	}
	purpose := strings.TrimSpace(request.Purpose)
	if purpose == "" {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidPurpose)
	}
	ttl := request.TTL
	if ttl <= 0 {
		ttl = service.reservationTTL
	}
	var reservation Reservation
	err := service.withLockedAccount(ctx, request.AccountID, func(ctx context.Context, txStore Store, account Account) error {
		nowUnixUTC := service.nowFn()
		if err := service.ensureAvailable(ctx, txStore, account, request.Amount, nowUnixUTC); err != nil {
			return err
		}
		reservationID, err := NewReservationID(service.newID())
		if err != nil {
			return err
		}
		created, err := NewReservation(ReservationParams{
			ReservationID:    reservationID,
			AccountID:        account.AccountID(),
			Amount:           request.Amount,
			Purpose:          purpose,
			SourcePlatform:   request.SourcePlatform,
			Status:           ReservationStatusPending,
			Reference:        request.Reference,
			Metadata:         request.Metadata,
			ExpiresAtUnixUTC: nowUnixUTC + ttlSeconds(ttl),
			CreatedUnixUTC:   nowUnixUTC,
		})
		if err != nil {
			return err
		}
		if err := txStore.InsertReservation(ctx, created); err != nil {
			return err
		}
		reservation = created
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return reservation, nil
}

func (service *Service) commit(ctx context.Context, request CommitRequest) (Receipt, int64, error) {
	if request.ReservationID.IsZero() {
		return Receipt{}, 0, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	if request.Kind == "" {
		return Receipt{}, 0, fmt.Errorf("%w: kind is required to commit", ErrInvalidTransactionKind)
	}
	if !request.Kind.IsSpend() {
		return Receipt{}, 0, fmt.Errorf("%w: %q cannot debit an account", ErrInvalidTransactionKind, request.Kind)
	}
	intent := transactionIntent{reservationID: request.ReservationID}
	if receipt, found, err := service.replay(ctx, service.store, request.IdempotencyKey, intent); err != nil || found {
		return receipt, 0, err
	}
	reservation, err := service.store.GetReservation(ctx, request.ReservationID)
	if err != nil {
		return Receipt{}, 0, err
	}
	intent.accountID = reservation.AccountID()

	var receipt Receipt
	err = service.withLockedAccount(ctx, reservation.AccountID(), func(ctx context.Context, txStore Store, account Account) error {
		replayed, found, err := service.replay(ctx, txStore, request.IdempotencyKey, intent)
		if err != nil {
			return err
		}
		if found {
			receipt = replayed
			return nil
		}
		nowUnixUTC := service.nowFn()
		current, err := txStore.GetReservation(ctx, request.ReservationID)
		if err != nil {
			return err
		}
		if current.Status() != ReservationStatusPending {
			return fmt.Errorf("%w: status %s", ErrReservationAlreadyProcessed, current.Status())
		}
		if current.ExpiresAtUnixUTC() <= nowUnixUTC {
			return ErrReservationExpired
		}
		committed, err := current.Transitioned(ReservationStatusCommitted, nowUnixUTC)
		if err != nil {
			return err
		}
		if err := txStore.TransitionReservation(ctx, committed, ReservationStatusPending); err != nil {
			return err
		}
		updated, err := account.Debit(current.Amount(), nowUnixUTC)
		if err != nil {
			return err
		}
		metadata := request.Metadata
		if metadata.value == "" {
			metadata = current.Metadata()
		}
		transaction, err := service.record(ctx, txStore, updated, TransactionParams{
			Amount:         current.Amount().ToDelta().Negated(),
			Kind:           request.Kind,
			SourcePlatform: current.SourcePlatform(),
			IdempotencyKey: request.IdempotencyKey,
			ReservationID:  current.ReservationID(),
			Reference:      current.Reference(),
			Metadata:       metadata,
			CreatedUnixUTC: nowUnixUTC,
		})
		if err != nil {
			return err
		}
		receipt = receiptFor(transaction, false)
		return nil
	})
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		receipt, err = service.resolveDuplicate(ctx, request.IdempotencyKey, intent)
	}
	if err != nil {
		return Receipt{}, reservation.Amount().Int64(), err
	}
	return receipt, reservation.Amount().Int64(), nil
}

// release returns the released reservation and, for logging, the one loaded before the lock.
func (service *Service) release(ctx context.Context, reservationID ReservationID) (Reservation, Reservation, error) {
	if reservationID.IsZero() {
		return Reservation{}, Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, Reservation{}, err
	}
	var released Reservation
	err = service.withLockedAccount(ctx, reservation.AccountID(), func(ctx context.Context, txStore Store, _ Account) error {
		current, err := txStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch current.Status() {
		case ReservationStatusReleased:
			released = current
			return nil
		case ReservationStatusPending:
		default:
			return fmt.Errorf("%w: status %s", ErrReservationAlreadyProcessed, current.Status())
		}
		updated, err := current.Transitioned(ReservationStatusReleased, service.nowFn())
		if err != nil {
			return err
		}
		if err := txStore.TransitionReservation(ctx, updated, ReservationStatusPending); err != nil {
			return err
		}
		released = updated
		return nil
	})
	if err != nil {
		return Reservation{}, reservation, err
	}
	return released, reservation, nil
}

func (service *Service) sweepExpired(ctx context.Context) (int, error) {
	nowUnixUTC := service.nowFn()
	expiredCount := 0
	for {
		batch, err := service.store.ListExpiredReservations(ctx, nowUnixUTC, service.sweepBatchSize)
		if err != nil {
			return expiredCount, err
		}
		progressed := 0
		for _, reservation := range batch {
			if err := ctx.Err(); err != nil {
				return expiredCount, err
			}
			expired, err := reservation.Transitioned(ReservationStatusExpired, nowUnixUTC)
			if errors.Is(err, ErrReservationAlreadyProcessed) {
				continue
			}
			if err != nil {
				return expiredCount, err
			}
			err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
				return txStore.TransitionReservation(ctx, expired, ReservationStatusPending)
			})
			if errors.Is(err, ErrReservationAlreadyProcessed) {
				continue
			}
			if err != nil {
				return expiredCount, err
			}
			expiredCount++
			progressed++
		}
		if len(batch) < service.sweepBatchSize || progressed == 0 {
			return expiredCount, nil
		}
	}
}

// withLockedAccount takes the account lock, opens a store transaction and loads the
// account row for update (creating it first when auto-create is enabled).
func (service *Service) withLockedAccount(ctx context.Context, accountID AccountID, fn func(ctx context.Context, txStore Store, account Account) error) error {
	unlock, err := service.locker.Lock(ctx, accountID)
	if err != nil {
		return err
	}
	defer unlock()
	return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		if service.autoCreate {
			opened, err := OpenAccount(accountID, service.nowFn())
			if err != nil {
				return err
			}
			if err := txStore.CreateAccount(ctx, opened); err != nil {
				return err
			}
		}
		account, err := txStore.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		return fn(ctx, txStore, account)
	})
}

func (service *Service) ensureAvailable(ctx context.Context, txStore Store, account Account, amount PositiveCredits, nowUnixUTC int64) error {
	pending, err := txStore.SumPendingUnexpired(ctx, account.AccountID(), nowUnixUTC)
	if err != nil {
		return err
	}
	available, err := calculateAvailable(account.Balance(), pending)
	if err != nil {
		return err
	}
	if available < amount.ToCredits() {
		return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientCredits, available, amount)
	}
	return nil
}

// record persists the updated account and its transaction in the caller's transaction.
// The running balance is taken from the updated account so the two never diverge.
func (service *Service) record(ctx context.Context, txStore Store, updated Account, params TransactionParams) (Transaction, error) {
	transactionID, err := NewTransactionID(service.newID())
	if err != nil {
		return Transaction{}, err
	}
	params.TransactionID = transactionID
	params.AccountID = updated.AccountID()
	params.Sequence = updated.Sequence()
	params.RunningBalance = updated.Balance()
	transaction, err := NewTransaction(params)
	if err != nil {
		return Transaction{}, err
	}
	if err := txStore.UpdateAccount(ctx, updated); err != nil {
		return Transaction{}, err
	}
	if err := txStore.AppendTransaction(ctx, transaction); err != nil {
		return Transaction{}, err
	}
	return transaction, nil
}

// transactionIntent describes the logical operation an idempotency key was used for.
type transactionIntent struct {
	accountID     AccountID
	amount        CreditDelta
	kind          TransactionKind
	reservationID ReservationID
}

func (intent transactionIntent) matches(transaction Transaction) bool {
	if !intent.reservationID.IsZero() {
		return transaction.ReservationID() == intent.reservationID
	}
	return transaction.ReservationID().IsZero() &&
		transaction.AccountID() == intent.accountID &&
		transaction.Amount() == intent.amount &&
		transaction.Kind() == intent.kind
}

func (service *Service) replay(ctx context.Context, store Store, idempotencyKey IdempotencyKey, intent transactionIntent) (Receipt, bool, error) {
	if idempotencyKey.IsZero() {
		return Receipt{}, false, nil
	}
	transaction, found, err := store.FindTransactionByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return Receipt{}, false, err
	}
	if !found {
		return Receipt{}, false, nil
	}
	if !intent.matches(transaction) {
		return Receipt{}, false, fmt.Errorf("%w: key %q", ErrDuplicateIdempotencyKeyConflict, idempotencyKey.String())
	}
	return receiptFor(transaction, true), true, nil
}

func (service *Service) resolveDuplicate(ctx context.Context, idempotencyKey IdempotencyKey, intent transactionIntent) (Receipt, error) {
	receipt, found, err := service.replay(ctx, service.store, idempotencyKey, intent)
	if err != nil {
		return Receipt{}, err
	}
	if !found {
		return Receipt{}, fmt.Errorf("%w: key %q", ErrDuplicateIdempotencyKeyConflict, idempotencyKey.String())
	}
	return receipt, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Error != nil {
		entry.Status = operationStatusError
	} else if entry.Status == "" {
		entry.Status = operationStatusOK
	}
	service.logger.LogOperation(ctx, entry)
}

func validateMovement(accountID AccountID, amount PositiveCredits, platform SourcePlatform) error {
	if accountID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if platform.value == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidSourcePlatform)
	}
	return nil
}

func receiptFor(transaction Transaction, replayed bool) Receipt {
	return Receipt{
		TransactionID: transaction.TransactionID(),
		AccountID:     transaction.AccountID(),
		Balance:       transaction.RunningBalance(),
		Replayed:      replayed,
	}
}

func replayStatus(receipt Receipt) string {
	if receipt.Replayed {
		return operationStatusReplayed
	}
	return ""
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl.Round(time.Second) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func calculateAvailable(balance Credits, pending Credits) (Credits, error) {
	available, err := NewCredits(balance.Int64() - pending.Int64())
	if err != nil {
		return 0, WrapError(errorOperationService, errorSubjectBalance, errorCodeAvailable, ErrInvalidBalance)
	}
	return available, nil
}
