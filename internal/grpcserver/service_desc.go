package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/credits/internal/wire"
	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "credits.v1.LedgerService"

// Method names of credits.v1.LedgerService.
const (
	MethodEarn             = "Earn"
	MethodSpend            = "Spend"
	MethodReserve          = "Reserve"
	MethodCommit           = "Commit"
	MethodRelease          = "Release"
	MethodGetReservation   = "GetReservation"
	MethodGetBalance       = "GetBalance"
	MethodListTransactions = "ListTransactions"
	MethodSweepExpired     = "SweepExpired"
	MethodReconcile        = "Reconcile"
	MethodResolveIdentity  = "ResolveIdentity"
)

// LedgerServiceServer is the server API for credits.v1.LedgerService.
type LedgerServiceServer interface {
	Earn(context.Context, *wire.MovementRequest) (*wire.ReceiptResponse, error)
	Spend(context.Context, *wire.MovementRequest) (*wire.ReceiptResponse, error)
	Reserve(context.Context, *wire.ReserveRequest) (*wire.ReservationResponse, error)
	Commit(context.Context, *wire.CommitRequest) (*wire.ReceiptResponse, error)
	Release(context.Context, *wire.ReservationRequest) (*wire.ReservationResponse, error)
	GetReservation(context.Context, *wire.ReservationRequest) (*wire.ReservationResponse, error)
	GetBalance(context.Context, *wire.AccountRequest) (*wire.BalanceResponse, error)
	ListTransactions(context.Context, *wire.ListTransactionsRequest) (*wire.ListTransactionsResponse, error)
	SweepExpired(context.Context, *wire.SweepRequest) (*wire.SweepResponse, error)
	Reconcile(context.Context, *wire.AccountRequest) (*wire.ReconciliationResponse, error)
	ResolveIdentity(context.Context, *wire.ResolveIdentityRequest) (*wire.IdentityResponse, error)
}

// LedgerServiceDesc describes credits.v1.LedgerService for grpc.Server.RegisterService.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodEarn, Handler: unaryHandler(MethodEarn, LedgerServiceServer.Earn)},
		{MethodName: MethodSpend, Handler: unaryHandler(MethodSpend, LedgerServiceServer.Spend)},
		{MethodName: MethodReserve, Handler: unaryHandler(MethodReserve, LedgerServiceServer.Reserve)},
		{MethodName: MethodCommit, Handler: unaryHandler(MethodCommit, LedgerServiceServer.Commit)},
		{MethodName: MethodRelease, Handler: unaryHandler(MethodRelease, LedgerServiceServer.Release)},
		{MethodName: MethodGetReservation, Handler: unaryHandler(MethodGetReservation, LedgerServiceServer.GetReservation)},
		{MethodName: MethodGetBalance, Handler: unaryHandler(MethodGetBalance, LedgerServiceServer.GetBalance)},
		{MethodName: MethodListTransactions, Handler: unaryHandler(MethodListTransactions, LedgerServiceServer.ListTransactions)},
		{MethodName: MethodSweepExpired, Handler: unaryHandler(MethodSweepExpired, LedgerServiceServer.SweepExpired)},
		{MethodName: MethodReconcile, Handler: unaryHandler(MethodReconcile, LedgerServiceServer.Reconcile)},
		{MethodName: MethodResolveIdentity, Handler: unaryHandler(MethodResolveIdentity, LedgerServiceServer.ResolveIdentity)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLedgerServiceServer registers server on registrar.
func RegisterLedgerServiceServer(registrar grpc.ServiceRegistrar, server LedgerServiceServer) {
	registrar.RegisterService(&LedgerServiceDesc, server)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Request any, Response any](method string, call func(LedgerServiceServer, context.Context, *Request) (*Response, error)) func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(server.(LedgerServiceServer), ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, request any) (any, error) {
			return call(server.(LedgerServiceServer), ctx, request.(*Request))
		}
		return interceptor(ctx, request, info, handler)
	}
}
