package ledger

import (
	"context"
	"errors"
	"fmt"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Balance reports total, pending and available credits for an account.
// Unknown accounts read as zero while auto-create is enabled. The account row
// and the pending sum are read under the account lock in one transaction.
func (service *Service) Balance(ctx context.Context, accountID AccountID) (AccountBalance, error) {
	if accountID.IsZero() {
		return AccountBalance{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	unlock, err := service.locker.Lock(ctx, accountID)
	if err != nil {
		return AccountBalance{}, err
	}
	defer unlock()

	var balance AccountBalance
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		pending, err := txStore.SumPendingUnexpired(ctx, accountID, service.nowFn())
		if err != nil {
			return err
		}
		available, err := calculateAvailable(account.Balance(), pending)
		if err != nil {
			return err
		}
		balance = AccountBalance{
			AccountID:      accountID,
			Total:          account.Balance(),
			Pending:        pending,
			Available:      available,
			LifetimeEarned: account.LifetimeEarned(),
		}
		return nil
	})
	if errors.Is(err, ErrAccountNotFound) && service.autoCreate {
		return AccountBalance{AccountID: accountID}, nil
	}
	if err != nil {
		return AccountBalance{}, err
	}
	return balance, nil
}

// ListTransactions returns the account's log newest first. beforeSequence <= 0 starts at the newest row.
func (service *Service) ListTransactions(ctx context.Context, accountID AccountID, beforeSequence int64, limit int) ([]Transaction, error) {
	if accountID.IsZero() {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return service.store.ListTransactions(ctx, accountID, beforeSequence, limit)
}

// GetReservation loads a reservation by id.
func (service *Service) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	if reservationID.IsZero() {
		return Reservation{}, fmt.Errorf("%w: empty value", ErrInvalidReservationID)
	}
	return service.store.GetReservation(ctx, reservationID)
}

// Reconcile recomputes the balance from the transaction log under the account lock.
func (service *Service) Reconcile(ctx context.Context, accountID AccountID) (Reconciliation, error) {
	if accountID.IsZero() {
		return Reconciliation{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	unlock, err := service.locker.Lock(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	defer unlock()

	var reconciliation Reconciliation
	err = service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		account, err := txStore.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		sum, count, err := txStore.SumTransactions(ctx, accountID)
		if err != nil {
			return err
		}
		reconciliation = Reconciliation{
			AccountID:        accountID,
			Materialized:     account.Balance(),
			Recomputed:       sum,
			TransactionCount: count,
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return reconciliation, nil
}
