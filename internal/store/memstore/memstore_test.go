package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"golang.org/x/sync/errgroup"
)

const fixedUnixUTC = 1_700_000_000

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := New()
	accountID := mustAccountID(test, "acct-rollback")
	errBoom := errors.New("boom")

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore ledger.Store) error {
		account := mustOpenAccount(test, accountID)
		if err := txStore.CreateAccount(ctx, account); err != nil {
			return err
		}
		if _, err := txStore.GetAccountForUpdate(ctx, accountID); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		test.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetAccount(context.Background(), accountID); !errors.Is(err, ledger.ErrAccountNotFound) {
		test.Fatalf("expected rollback, got %v", err)
	}
}

func TestCreateAccountIsInsertIfAbsent(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-create")
	mustEarn(test, service, accountID, 10, "")

	if err := store.CreateAccount(context.Background(), mustOpenAccount(test, accountID)); err != nil {
		test.Fatalf("create account: %v", err)
	}
	account, err := store.GetAccount(context.Background(), accountID)
	if err != nil {
		test.Fatalf("get account: %v", err)
	}
	if account.Balance() != 10 {
		test.Fatalf("create must not reset an existing account, balance %d", account.Balance())
	}
}

func TestDuplicateIdempotencyKeyRejected(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-dup")
	first := mustEarn(test, service, accountID, 5, "dup-key")

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore ledger.Store) error {
		staged, err := ledger.NewTransaction(ledger.TransactionParams{
			TransactionID:  mustTransactionID(test, "txn-racer"),
			AccountID:      accountID,
			Sequence:       99,
			Amount:         5,
			RunningBalance: 10,
			Kind:           ledger.KindLoyalty,
			SourcePlatform: mustPlatform(test, "web"),
			IdempotencyKey: mustIdempotencyKey(test, "dup-key"),
		})
		if err != nil {
			return err
		}
		return txStore.AppendTransaction(ctx, staged)
	})
	if !errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		test.Fatalf("expected duplicate key, got %v", err)
	}
	found, ok, err := store.FindTransactionByIdempotencyKey(context.Background(), mustIdempotencyKey(test, "dup-key"))
	if err != nil || !ok || found.TransactionID() != first.TransactionID {
		test.Fatalf("expected original transaction to survive, got %v %v", ok, err)
	}
}

func TestStaleTransitionFailsAtCommit(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-stale")
	mustEarn(test, service, accountID, 10, "")
	reservation := mustReserve(test, service, accountID, 5)

	err := store.WithTx(context.Background(), func(ctx context.Context, txStore ledger.Store) error {
		current, err := txStore.GetReservation(ctx, reservation.ReservationID())
		if err != nil {
			return err
		}
		expired, err := current.Transitioned(ledger.ReservationStatusExpired, fixedUnixUTC)
		if err != nil {
			return err
		}
		if err := txStore.TransitionReservation(ctx, expired, ledger.ReservationStatusPending); err != nil {
			return err
		}
		if _, err := service.Release(ctx, reservation.ReservationID()); err != nil {
			return err
		}
		return nil
	})
	if !errors.Is(err, ledger.ErrReservationAlreadyProcessed) {
		test.Fatalf("expected stale transition to fail, got %v", err)
	}
	stored, err := store.GetReservation(context.Background(), reservation.ReservationID())
	if err != nil {
		test.Fatalf("get reservation: %v", err)
	}
	if stored.Status() != ledger.ReservationStatusReleased {
		test.Fatalf("expected release to win, got %s", stored.Status())
	}
}

func TestTxOverlaySeesStagedReservations(test *testing.T) {
	test.Parallel()
	store := New()
	accountID := mustAccountID(test, "acct-overlay")
	reservation, err := ledger.NewReservation(ledger.ReservationParams{
		ReservationID:    mustReservationID(test, "res-overlay"),
		AccountID:        accountID,
		Amount:           7,
		Purpose:          "render",
		SourcePlatform:   mustPlatform(test, "studio"),
		Status:           ledger.ReservationStatusPending,
		ExpiresAtUnixUTC: fixedUnixUTC + 60,
		CreatedUnixUTC:   fixedUnixUTC,
	})
	if err != nil {
		test.Fatalf("new reservation: %v", err)
	}
	err = store.WithTx(context.Background(), func(ctx context.Context, txStore ledger.Store) error {
		if err := txStore.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		pending, err := txStore.SumPendingUnexpired(ctx, accountID, fixedUnixUTC)
		if err != nil {
			return err
		}
		if pending != 7 {
			return fmt.Errorf("expected staged pending 7, got %d", pending)
		}
		if err := txStore.InsertReservation(ctx, reservation); !errors.Is(err, ledger.ErrReservationExists) {
			return fmt.Errorf("expected duplicate reservation, got %v", err)
		}
		committed, err := store.SumPendingUnexpired(ctx, accountID, fixedUnixUTC)
		if err != nil {
			return err
		}
		if committed != 0 {
			return fmt.Errorf("staged reservation leaked before commit: %d", committed)
		}
		return nil
	})
	if err != nil {
		test.Fatalf("tx: %v", err)
	}
	pending, err := store.SumPendingUnexpired(context.Background(), accountID, fixedUnixUTC)
	if err != nil || pending != 7 {
		test.Fatalf("expected committed pending 7, got %d, %v", pending, err)
	}
}

func TestConcurrentEarnsAcrossAccounts(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	const accounts = 8
	const earnsPerAccount = 50

	group, ctx := errgroup.WithContext(context.Background())
	for accountIndex := 0; accountIndex < accounts; accountIndex++ {
		accountID := mustAccountID(test, fmt.Sprintf("acct-%d", accountIndex))
		for earn := 0; earn < earnsPerAccount; earn++ {
			group.Go(func() error {
				_, err := service.Earn(ctx, ledger.EarnRequest{
					AccountID:      accountID,
					Amount:         1,
					Kind:           ledger.KindLoyalty,
					SourcePlatform: mustPlatform(test, "marketplace"),
				})
				return err
			})
		}
	}
	if err := group.Wait(); err != nil {
		test.Fatalf("earn: %v", err)
	}
	for accountIndex := 0; accountIndex < accounts; accountIndex++ {
		accountID := mustAccountID(test, fmt.Sprintf("acct-%d", accountIndex))
		reconciliation, err := service.Reconcile(context.Background(), accountID)
		if err != nil {
			test.Fatalf("reconcile: %v", err)
		}
		if !reconciliation.Consistent() || reconciliation.Materialized != earnsPerAccount || reconciliation.TransactionCount != earnsPerAccount {
			test.Fatalf("unexpected reconciliation %+v", reconciliation)
		}
	}
}

func TestConcurrentIdempotentSpendsDebitOnce(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-idem-race")
	mustEarn(test, service, accountID, 100, "")

	group, ctx := errgroup.WithContext(context.Background())
	for attempt := 0; attempt < 16; attempt++ {
		group.Go(func() error {
			receipt, err := service.Spend(ctx, ledger.SpendRequest{
				AccountID:      accountID,
				Amount:         40,
				Kind:           ledger.KindRedemption,
				SourcePlatform: mustPlatform(test, "marketplace"),
				IdempotencyKey: mustIdempotencyKey(test, "redeem-1"),
			})
			if err != nil {
				return err
			}
			if receipt.Balance != 60 {
				return fmt.Errorf("expected balance 60, got %d", receipt.Balance)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		test.Fatalf("spend: %v", err)
	}
	account, err := store.GetAccount(context.Background(), accountID)
	if err != nil {
		test.Fatalf("get account: %v", err)
	}
	if account.Balance() != 60 {
		test.Fatalf("expected a single debit, balance %d", account.Balance())
	}
}

func TestConcurrentReservationsNeverOverdraw(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-holds")
	mustEarn(test, service, accountID, 100, "")

	results := make(chan error, 10)
	group, ctx := errgroup.WithContext(context.Background())
	for attempt := 0; attempt < 10; attempt++ {
		group.Go(func() error {
			_, err := service.Reserve(ctx, ledger.ReserveRequest{
				AccountID:      accountID,
				Amount:         30,
				Purpose:        "render",
				SourcePlatform: mustPlatform(test, "studio"),
			})
			results <- err
			return nil
		})
	}
	_ = group.Wait()
	close(results)
	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ledger.ErrInsufficientCredits):
		default:
			test.Fatalf("unexpected reserve error: %v", err)
		}
	}
	if succeeded != 3 {
		test.Fatalf("expected 3 holds of 30 against 100, got %d", succeeded)
	}
}

func TestListTransactionsNewestFirst(test *testing.T) {
	test.Parallel()
	store := New()
	service := mustService(test, store)
	accountID := mustAccountID(test, "acct-list")
	for index := 0; index < 4; index++ {
		mustEarn(test, service, accountID, int64(index+1), "")
	}
	page, err := store.ListTransactions(context.Background(), accountID, 3, 10)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Sequence() != 2 || page[1].Sequence() != 1 {
		test.Fatalf("unexpected page %+v", page)
	}
}

func mustService(test *testing.T, store ledger.Store) *ledger.Service {
	test.Helper()
	service, err := ledger.NewService(store, func() int64 { return fixedUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustEarn(test *testing.T, service *ledger.Service, accountID ledger.AccountID, amount int64, key string) ledger.Receipt {
	test.Helper()
	idempotencyKey, err := ledger.ParseOptionalIdempotencyKey(key)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	receipt, err := service.Earn(context.Background(), ledger.EarnRequest{
		AccountID:      accountID,
		Amount:         ledger.PositiveCredits(amount),
		Kind:           ledger.KindLoyalty,
		SourcePlatform: mustPlatform(test, "marketplace"),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		test.Fatalf("earn: %v", err)
	}
	return receipt
}

func mustReserve(test *testing.T, service *ledger.Service, accountID ledger.AccountID, amount int64) ledger.Reservation {
	test.Helper()
	reservation, err := service.Reserve(context.Background(), ledger.ReserveRequest{
		AccountID:      accountID,
		Amount:         ledger.PositiveCredits(amount),
		Purpose:        "render",
		SourcePlatform: mustPlatform(test, "studio"),
	})
	if err != nil {
		test.Fatalf("reserve: %v", err)
	}
	return reservation
}

func mustOpenAccount(test *testing.T, accountID ledger.AccountID) ledger.Account {
	test.Helper()
	account, err := ledger.OpenAccount(accountID, fixedUnixUTC)
	if err != nil {
		test.Fatalf("open account: %v", err)
	}
	return account
}

func mustAccountID(test *testing.T, raw string) ledger.AccountID {
	test.Helper()
	accountID, err := ledger.NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustReservationID(test *testing.T, raw string) ledger.ReservationID {
	test.Helper()
	reservationID, err := ledger.NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return reservationID
}

func mustTransactionID(test *testing.T, raw string) ledger.TransactionID {
	test.Helper()
	transactionID, err := ledger.NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id: %v", err)
	}
	return transactionID
}

func mustIdempotencyKey(test *testing.T, raw string) ledger.IdempotencyKey {
	test.Helper()
	key, err := ledger.NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return key
}

func mustPlatform(test *testing.T, raw string) ledger.SourcePlatform {
	test.Helper()
	platform, err := ledger.NewSourcePlatform(raw)
	if err != nil {
		test.Fatalf("platform: %v", err)
	}
	return platform
}
