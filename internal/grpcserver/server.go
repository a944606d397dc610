package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/internal/wire"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorIdentityDisabled = "identity_resolution_disabled"

// LedgerServer exposes the credit ledger over gRPC.
type LedgerServer struct {
	ledgerService *ledger.Service
	resolver      *identity.Resolver
}

var _ LedgerServiceServer = (*LedgerServer)(nil)

// NewLedgerServer constructs a gRPC server for the ledger service. resolver may be nil.
func NewLedgerServer(ledgerService *ledger.Service, resolver *identity.Resolver) *LedgerServer {
	return &LedgerServer{ledgerService: ledgerService, resolver: resolver}
}

func (server *LedgerServer) Earn(ctx context.Context, request *wire.MovementRequest) (*wire.ReceiptResponse, error) {
	earnRequest, err := request.EarnRequest()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, operationError := server.ledgerService.Earn(ctx, earnRequest)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReceiptResponse(receipt), nil
}

func (server *LedgerServer) Spend(ctx context.Context, request *wire.MovementRequest) (*wire.ReceiptResponse, error) {
	spendRequest, err := request.SpendRequest()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, operationError := server.ledgerService.Spend(ctx, spendRequest)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReceiptResponse(receipt), nil
}

func (server *LedgerServer) Reserve(ctx context.Context, request *wire.ReserveRequest) (*wire.ReservationResponse, error) {
	reserveRequest, err := request.LedgerRequest()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reservation, operationError := server.ledgerService.Reserve(ctx, reserveRequest)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReservationResponse(reservation), nil
}

func (server *LedgerServer) Commit(ctx context.Context, request *wire.CommitRequest) (*wire.ReceiptResponse, error) {
	commitRequest, err := request.LedgerRequest()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, operationError := server.ledgerService.Commit(ctx, commitRequest)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReceiptResponse(receipt), nil
}

func (server *LedgerServer) Release(ctx context.Context, request *wire.ReservationRequest) (*wire.ReservationResponse, error) {
	reservationID, err := ledger.NewReservationID(request.ReservationID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reservation, operationError := server.ledgerService.Release(ctx, reservationID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReservationResponse(reservation), nil
}

func (server *LedgerServer) GetReservation(ctx context.Context, request *wire.ReservationRequest) (*wire.ReservationResponse, error) {
	reservationID, err := ledger.NewReservationID(request.ReservationID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reservation, operationError := server.ledgerService.GetReservation(ctx, reservationID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReservationResponse(reservation), nil
}

func (server *LedgerServer) GetBalance(ctx context.Context, request *wire.AccountRequest) (*wire.BalanceResponse, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	balance, operationError := server.ledgerService.Balance(ctx, accountID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewBalanceResponse(balance), nil
}

func (server *LedgerServer) ListTransactions(ctx context.Context, request *wire.ListTransactionsRequest) (*wire.ListTransactionsResponse, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	transactions, operationError := server.ledgerService.ListTransactions(ctx, accountID, request.BeforeSequence, request.Limit)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewListTransactionsResponse(transactions), nil
}

func (server *LedgerServer) SweepExpired(ctx context.Context, _ *wire.SweepRequest) (*wire.SweepResponse, error) {
	expired, operationError := server.ledgerService.SweepExpired(ctx)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &wire.SweepResponse{Expired: expired}, nil
}

func (server *LedgerServer) Reconcile(ctx context.Context, request *wire.AccountRequest) (*wire.ReconciliationResponse, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reconciliation, operationError := server.ledgerService.Reconcile(ctx, accountID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return wire.NewReconciliationResponse(reconciliation), nil
}

func (server *LedgerServer) ResolveIdentity(ctx context.Context, request *wire.ResolveIdentityRequest) (*wire.IdentityResponse, error) {
	if server.resolver == nil {
		return nil, status.Error(codes.Unimplemented, errorIdentityDisabled)
	}
	platform, err := ledger.NewSourcePlatform(request.Platform)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	accountID, operationError := server.resolver.Resolve(ctx, platform, request.PlatformUserID)
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &wire.IdentityResponse{AccountID: accountID.String()}, nil
}

func mapToGRPCError(source error) error {
	class, code := wire.Classify(source)
	switch class {
	case wire.ClassInvalid:
		return status.Error(codes.InvalidArgument, code)
	case wire.ClassInsufficient, wire.ClassAlreadyProcessed, wire.ClassExpired:
		return status.Error(codes.FailedPrecondition, code)
	case wire.ClassNotFound:
		return status.Error(codes.NotFound, code)
	case wire.ClassConflict:
		return status.Error(codes.AlreadyExists, code)
	case wire.ClassUnavailable:
		return status.Error(codes.Unavailable, code)
	default:
		return status.Error(codes.Internal, source.Error())
	}
}
