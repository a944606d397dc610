package ledger

import (
	"context"
	"sync"
	"testing"
)

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsEarnOperation(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	service := mustNewService(test, newStubStore(test), newTestClock(42), WithOperationLogger(logger))
	accountID := mustAccountID(test, "user-1")
	idempotencyKey := mustIdempotencyKey(test, "earn-1")
	request := EarnRequest{
		AccountID:      accountID,
		Amount:         mustPositive(test, 100),
		Kind:           KindReferral,
		SourcePlatform: mustPlatform(test, "marketplace"),
		IdempotencyKey: idempotencyKey,
		Metadata:       mustMetadata(test, `{"action":"test"}`),
	}
	receipt, err := service.Earn(context.Background(), request)
	if err != nil {
		test.Fatalf("earn failed: %v", err)
	}
	if _, err := service.Earn(context.Background(), request); err != nil {
		test.Fatalf("replayed earn failed: %v", err)
	}
	if len(logger.entries) != 2 {
		test.Fatalf("expected two log entries, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationEarn || entry.AccountID != accountID || entry.Amount != 100 || entry.IdempotencyKey != idempotencyKey || entry.TransactionID != receipt.TransactionID {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
	if logger.entries[1].Status != operationStatusReplayed {
		test.Fatalf("expected replayed status, got %q", logger.entries[1].Status)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.failures.getAccount = errStoreFailure
	logger := &recorderLogger{}
	service := mustNewService(test, store, newTestClock(1), WithOperationLogger(logger))
	_, err := service.Spend(context.Background(), spendRequest(test, mustAccountID(test, "user-1"), 5))
	if err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Status != operationStatusError || entry.Error == nil || entry.Operation != operationSpend {
		test.Fatalf("expected error log entry, got %+v", entry)
	}
}

func TestServiceLogsSweepCount(test *testing.T) {
	test.Parallel()
	logger := &recorderLogger{}
	clock := newTestClock(1000)
	service := mustNewService(test, newStubStore(test), clock, WithOperationLogger(logger))
	accountID := mustAccountID(test, "user-sweep")
	mustEarn(test, service, accountID, 10)
	reservation := mustReserve(test, service, accountID, 3)
	clock.Advance(int64(DefaultReservationTTL.Seconds()))
	if _, err := service.SweepExpired(context.Background()); err != nil {
		test.Fatalf("sweep: %v", err)
	}
	last := logger.entries[len(logger.entries)-1]
	if last.Operation != operationSweep || last.Count != 1 {
		test.Fatalf("unexpected sweep log entry %+v", last)
	}
	reserveEntry := logger.entries[1]
	if reserveEntry.Operation != operationReserve || reserveEntry.ReservationID != reservation.ReservationID() {
		test.Fatalf("unexpected reserve log entry %+v", reserveEntry)
	}
}
