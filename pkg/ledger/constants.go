package ledger

import "time"

const (
	operationEarn    = "earn"
	operationSpend   = "spend"
	operationReserve = "reserve"
	operationCommit  = "commit"
	operationRelease = "release"
	operationSweep   = "sweep"

	operationStatusOK       = "ok"
	operationStatusReplayed = "replayed"
	operationStatusError    = "error"

	errorOperationAccount = "account"
	errorOperationService = "service"
	errorSubjectBalance   = "balance"
	errorSubjectLock      = "lock"
	errorCodeOverflow     = "overflow"
	errorCodeNegative     = "negative"
	errorCodeAvailable    = "negative_available"
	errorCodeTimeout      = "timeout"

	defaultMetadataJSON     = "{}"
	maxIdempotencyKeyLength = 255

	// DefaultReservationTTL bounds how long a pending reservation holds credits.
	DefaultReservationTTL = 15 * time.Minute
	// DefaultLockTimeout bounds the wait for an account lock.
	DefaultLockTimeout = 5 * time.Second
	// DefaultSweepBatchSize is the page size used by SweepExpired.
	DefaultSweepBatchSize = 500
)
