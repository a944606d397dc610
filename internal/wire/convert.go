package wire

import (
	"encoding/json"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
)

// EarnRequest converts the payload into a validated ledger request.
func (request *MovementRequest) EarnRequest() (ledger.EarnRequest, error) {
	fields, err := request.movementFields()
	if err != nil {
		return ledger.EarnRequest{}, err
	}
	return ledger.EarnRequest(fields), nil
}

// SpendRequest converts the payload into a validated ledger request.
func (request *MovementRequest) SpendRequest() (ledger.SpendRequest, error) {
	fields, err := request.movementFields()
	if err != nil {
		return ledger.SpendRequest{}, err
	}
	return ledger.SpendRequest(fields), nil
}

// movementFields mirrors the field set shared by ledger.EarnRequest and ledger.SpendRequest.
type movementFields struct {
	AccountID      ledger.AccountID
	Amount         ledger.PositiveCredits
	Kind           ledger.TransactionKind
	SourcePlatform ledger.SourcePlatform
	IdempotencyKey ledger.IdempotencyKey
	Reference      ledger.Reference
	Metadata       ledger.MetadataJSON
}

func (request *MovementRequest) movementFields() (movementFields, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return movementFields{}, err
	}
	amount, err := ledger.NewPositiveCredits(request.Amount)
	if err != nil {
		return movementFields{}, err
	}
	kind, err := ledger.ParseTransactionKind(request.Kind)
	if err != nil {
		return movementFields{}, err
	}
	platform, err := ledger.NewSourcePlatform(request.SourcePlatform)
	if err != nil {
		return movementFields{}, err
	}
	idempotencyKey, err := ledger.ParseOptionalIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		return movementFields{}, err
	}
	reference, err := ledger.NewReference(request.ReferenceID, request.ReferenceType)
	if err != nil {
		return movementFields{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		return movementFields{}, err
	}
	return movementFields{
		AccountID:      accountID,
		Amount:         amount,
		Kind:           kind,
		SourcePlatform: platform,
		IdempotencyKey: idempotencyKey,
		Reference:      reference,
		Metadata:       metadata,
	}, nil
}

// LedgerRequest converts the payload into a validated ledger request.
func (request *ReserveRequest) LedgerRequest() (ledger.ReserveRequest, error) {
	if err := request.Validate(); err != nil {
		return ledger.ReserveRequest{}, err
	}
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return ledger.ReserveRequest{}, err
	}
	amount, err := ledger.NewPositiveCredits(request.Amount)
	if err != nil {
		return ledger.ReserveRequest{}, err
	}
	platform, err := ledger.NewSourcePlatform(request.SourcePlatform)
	if err != nil {
		return ledger.ReserveRequest{}, err
	}
	reference, err := ledger.NewReference(request.ReferenceID, request.ReferenceType)
	if err != nil {
		return ledger.ReserveRequest{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		return ledger.ReserveRequest{}, err
	}
	return ledger.ReserveRequest{
		AccountID:      accountID,
		Amount:         amount,
		Purpose:        request.Purpose,
		SourcePlatform: platform,
		Reference:      reference,
		Metadata:       metadata,
		TTL:            request.ttl(),
	}, nil
}

// LedgerRequest converts the payload into a validated ledger request.
func (request *CommitRequest) LedgerRequest() (ledger.CommitRequest, error) {
	reservationID, err := ledger.NewReservationID(request.ReservationID)
	if err != nil {
		return ledger.CommitRequest{}, err
	}
	kind, err := ledger.ParseTransactionKind(request.Kind)
	if err != nil {
		return ledger.CommitRequest{}, err
	}
	idempotencyKey, err := ledger.ParseOptionalIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		return ledger.CommitRequest{}, err
	}
	var metadata ledger.MetadataJSON
	if len(request.Metadata) > 0 {
		metadata, err = ledger.NewMetadataJSON(string(request.Metadata))
		if err != nil {
			return ledger.CommitRequest{}, err
		}
	}
	return ledger.CommitRequest{
		ReservationID:  reservationID,
		Kind:           kind,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	}, nil
}

// NewReceiptResponse encodes a ledger receipt.
func NewReceiptResponse(receipt ledger.Receipt) *ReceiptResponse {
	return &ReceiptResponse{
		TransactionID: receipt.TransactionID.String(),
		AccountID:     receipt.AccountID.String(),
		Balance:       receipt.Balance.Int64(),
		Replayed:      receipt.Replayed,
	}
}

// NewReservationResponse encodes a reservation.
func NewReservationResponse(reservation ledger.Reservation) *ReservationResponse {
	return &ReservationResponse{
		ReservationID:    reservation.ReservationID().String(),
		AccountID:        reservation.AccountID().String(),
		Amount:           reservation.Amount().Int64(),
		Purpose:          reservation.Purpose(),
		SourcePlatform:   reservation.SourcePlatform().String(),
		Status:           reservation.Status().String(),
		ReferenceID:      reservation.Reference().ID(),
		ReferenceType:    reservation.Reference().Type(),
		Metadata:         json.RawMessage(reservation.Metadata().String()),
		ExpiresAtUnixUTC: reservation.ExpiresAtUnixUTC(),
		CreatedUnixUTC:   reservation.CreatedUnixUTC(),
		CommittedUnixUTC: reservation.CommittedUnixUTC(),
		ReleasedUnixUTC:  reservation.ReleasedUnixUTC(),
	}
}

// NewBalanceResponse encodes an account balance.
func NewBalanceResponse(balance ledger.AccountBalance) *BalanceResponse {
	return &BalanceResponse{
		AccountID:      balance.AccountID.String(),
		Balance:        balance.Total.Int64(),
		Pending:        balance.Pending.Int64(),
		Available:      balance.Available.Int64(),
		LifetimeEarned: balance.LifetimeEarned.Int64(),
	}
}

// NewListTransactionsResponse encodes a page of the log.
func NewListTransactionsResponse(transactions []ledger.Transaction) *ListTransactionsResponse {
	response := &ListTransactionsResponse{Transactions: make([]TransactionResponse, 0, len(transactions))}
	for _, transaction := range transactions {
		response.Transactions = append(response.Transactions, TransactionResponse{
			TransactionID:  transaction.TransactionID().String(),
			AccountID:      transaction.AccountID().String(),
			Sequence:       transaction.Sequence(),
			Amount:         transaction.Amount().Int64(),
			RunningBalance: transaction.RunningBalance().Int64(),
			Kind:           transaction.Kind().String(),
			SourcePlatform: transaction.SourcePlatform().String(),
			IdempotencyKey: transaction.IdempotencyKey().String(),
			ReservationID:  transaction.ReservationID().String(),
			ReferenceID:    transaction.Reference().ID(),
			ReferenceType:  transaction.Reference().Type(),
			Metadata:       json.RawMessage(transaction.Metadata().String()),
			CreatedUnixUTC: transaction.CreatedUnixUTC(),
		})
	}
	return response
}

// NewReconciliationResponse encodes a reconciliation report.
func NewReconciliationResponse(reconciliation ledger.Reconciliation) *ReconciliationResponse {
	return &ReconciliationResponse{
		AccountID:        reconciliation.AccountID.String(),
		Balance:          reconciliation.Materialized.Int64(),
		LogSum:           reconciliation.Recomputed,
		TransactionCount: reconciliation.TransactionCount,
		Consistent:       reconciliation.Consistent(),
	}
}
