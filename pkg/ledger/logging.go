package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation      string
	AccountID      AccountID
	ReservationID  ReservationID
	TransactionID  TransactionID
	Amount         int64
	Kind           TransactionKind
	IdempotencyKey IdempotencyKey
	Count          int
	Status         string
	Error          error
	Duration       time.Duration
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithAccountLocker replaces the default in-process account locker.
func WithAccountLocker(locker AccountLocker) ServiceOption {
	return func(service *Service) {
		if locker != nil {
			service.locker = locker
		}
	}
}

// WithReservationTTL sets the default lifetime of new reservations.
func WithReservationTTL(ttl time.Duration) ServiceOption {
	return func(service *Service) {
		if ttl > 0 {
			service.reservationTTL = ttl
		}
	}
}

// WithIDGenerator overrides how transaction and reservation ids are minted.
func WithIDGenerator(generator func() string) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.newID = generator
		}
	}
}

// WithSweepBatchSize sets how many expired reservations SweepExpired loads per page.
func WithSweepBatchSize(size int) ServiceOption {
	return func(service *Service) {
		if size > 0 {
			service.sweepBatchSize = size
		}
	}
}

// WithoutAccountAutoCreate makes operations on unknown accounts fail with ErrAccountNotFound.
func WithoutAccountAutoCreate() ServiceOption {
	return func(service *Service) {
		service.autoCreate = false
	}
}

func defaultIDGenerator() string {
	return uuid.NewString()
}
