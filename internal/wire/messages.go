// Package wire holds the request and response payloads shared by the gRPC and HTTP facades.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

// Shape errors returned by Validate.
var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidLimit = errors.New("invalid limit")
)

// MovementRequest is the payload of Earn and Spend.
type MovementRequest struct {
	AccountID      string          `json:"account_id"`
	Amount         int64           `json:"amount"`
	Kind           string          `json:"kind"`
	SourcePlatform string          `json:"source_platform"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ReserveRequest is the payload of Reserve.
type ReserveRequest struct {
	AccountID      string          `json:"account_id"`
	Amount         int64           `json:"amount"`
	Purpose        string          `json:"purpose"`
	SourcePlatform string          `json:"source_platform"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	TTLSeconds     int64           `json:"ttl_seconds,omitempty"`
}

// CommitRequest is the payload of Commit.
type CommitRequest struct {
	ReservationID  string          `json:"reservation_id"`
	Kind           string          `json:"kind"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ReservationRequest addresses a single reservation (Release, GetReservation).
type ReservationRequest struct {
	ReservationID string `json:"reservation_id"`
}

// AccountRequest addresses a single account (GetBalance, Reconcile).
type AccountRequest struct {
	AccountID string `json:"account_id"`
}

// ListTransactionsRequest pages through an account's log, newest first.
type ListTransactionsRequest struct {
	AccountID      string `json:"account_id"`
	BeforeSequence int64  `json:"before_sequence,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// SweepRequest triggers one expiry sweep.
type SweepRequest struct{}

// ResolveIdentityRequest maps a platform user to a unified account.
type ResolveIdentityRequest struct {
	Platform       string `json:"platform"`
	PlatformUserID string `json:"platform_user_id"`
}

// ReceiptResponse is the outcome of Earn, Spend and Commit.
type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Balance       int64  `json:"balance"`
	Replayed      bool   `json:"replayed"`
}

// ReservationResponse describes a reservation.
type ReservationResponse struct {
	ReservationID    string          `json:"reservation_id"`
	AccountID        string          `json:"account_id"`
	Amount           int64           `json:"amount"`
	Purpose          string          `json:"purpose"`
	SourcePlatform   string          `json:"source_platform"`
	Status           string          `json:"status"`
	ReferenceID      string          `json:"reference_id,omitempty"`
	ReferenceType    string          `json:"reference_type,omitempty"`
	Metadata         json.RawMessage `json:"metadata"`
	ExpiresAtUnixUTC int64           `json:"expires_at_unix_utc"`
	CreatedUnixUTC   int64           `json:"created_unix_utc"`
	CommittedUnixUTC int64           `json:"committed_unix_utc,omitempty"`
	ReleasedUnixUTC  int64           `json:"released_unix_utc,omitempty"`
}

// BalanceResponse reports total, pending and available credits.
type BalanceResponse struct {
	AccountID      string `json:"account_id"`
	Balance        int64  `json:"balance"`
	Pending        int64  `json:"pending"`
	Available      int64  `json:"available"`
	LifetimeEarned int64  `json:"lifetime_earned"`
}

// TransactionResponse is one log row.
type TransactionResponse struct {
	TransactionID  string          `json:"transaction_id"`
	AccountID      string          `json:"account_id"`
	Sequence       int64           `json:"sequence"`
	Amount         int64           `json:"amount"`
	RunningBalance int64           `json:"running_balance"`
	Kind           string          `json:"kind"`
	SourcePlatform string          `json:"source_platform"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ReservationID  string          `json:"reservation_id,omitempty"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	ReferenceType  string          `json:"reference_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

// ListTransactionsResponse is a page of the log.
type ListTransactionsResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// SweepResponse reports how many reservations a sweep expired.
type SweepResponse struct {
	Expired int `json:"expired"`
}

// ReconciliationResponse compares the stored balance with the log.
type ReconciliationResponse struct {
	AccountID        string `json:"account_id"`
	Balance          int64  `json:"balance"`
	LogSum           int64  `json:"log_sum"`
	TransactionCount int64  `json:"transaction_count"`
	Consistent       bool   `json:"consistent"`
}

// IdentityResponse carries a resolved account id.
type IdentityResponse struct {
	AccountID string `json:"account_id"`
}

// Validate performs the shape checks that do not need the ledger.
func (request *MovementRequest) Validate() error {
	if request.AccountID == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ledger.ErrInvalidAmount)
	}
	if request.Kind == "" {
		return fmt.Errorf("%w: kind", ErrMissingField)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *ReserveRequest) Validate() error {
	if request.AccountID == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ledger.ErrInvalidAmount)
	}
	if request.TTLSeconds < 0 {
		return fmt.Errorf("%w: ttl_seconds must not be negative", ledger.ErrInvalidReservationExpiry)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *CommitRequest) Validate() error {
	if request.ReservationID == "" {
		return fmt.Errorf("%w: reservation_id", ErrMissingField)
	}
	if request.Kind == "" {
		return fmt.Errorf("%w: kind", ErrMissingField)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *ReservationRequest) Validate() error {
	if request.ReservationID == "" {
		return fmt.Errorf("%w: reservation_id", ErrMissingField)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *AccountRequest) Validate() error {
	if request.AccountID == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *ListTransactionsRequest) Validate() error {
	if request.AccountID == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	if request.Limit < 0 {
		return fmt.Errorf("%w: must not be negative", ErrInvalidLimit)
	}
	return nil
}

// Validate performs the shape checks that do not need the ledger.
func (request *ResolveIdentityRequest) Validate() error {
	if request.Platform == "" {
		return fmt.Errorf("%w: platform", ErrMissingField)
	}
	if request.PlatformUserID == "" {
		return fmt.Errorf("%w: platform_user_id", ErrMissingField)
	}
	return nil
}

// ttl converts the optional seconds field.
func (request *ReserveRequest) ttl() time.Duration {
	return time.Duration(request.TTLSeconds) * time.Second
}
