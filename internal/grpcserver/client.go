package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/credits/internal/wire"
	"google.golang.org/grpc"
)

// Client calls credits.v1.LedgerService with the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// CallOptions returns the call options every request needs.
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}

func invoke[Response any](ctx context.Context, client *Client, method string, request any) (*Response, error) {
	response := new(Response)
	if err := client.conn.Invoke(ctx, fullMethod(method), request, response, CallOptions()...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *Client) Earn(ctx context.Context, request *wire.MovementRequest) (*wire.ReceiptResponse, error) {
	return invoke[wire.ReceiptResponse](ctx, client, MethodEarn, request)
}

func (client *Client) Spend(ctx context.Context, request *wire.MovementRequest) (*wire.ReceiptResponse, error) {
	return invoke[wire.ReceiptResponse](ctx, client, MethodSpend, request)
}

func (client *Client) Reserve(ctx context.Context, request *wire.ReserveRequest) (*wire.ReservationResponse, error) {
	return invoke[wire.ReservationResponse](ctx, client, MethodReserve, request)
}

func (client *Client) Commit(ctx context.Context, request *wire.CommitRequest) (*wire.ReceiptResponse, error) {
	return invoke[wire.ReceiptResponse](ctx, client, MethodCommit, request)
}

func (client *Client) Release(ctx context.Context, request *wire.ReservationRequest) (*wire.ReservationResponse, error) {
	return invoke[wire.ReservationResponse](ctx, client, MethodRelease, request)
}

func (client *Client) GetReservation(ctx context.Context, request *wire.ReservationRequest) (*wire.ReservationResponse, error) {
	return invoke[wire.ReservationResponse](ctx, client, MethodGetReservation, request)
}

func (client *Client) GetBalance(ctx context.Context, request *wire.AccountRequest) (*wire.BalanceResponse, error) {
	return invoke[wire.BalanceResponse](ctx, client, MethodGetBalance, request)
}

func (client *Client) ListTransactions(ctx context.Context, request *wire.ListTransactionsRequest) (*wire.ListTransactionsResponse, error) {
	return invoke[wire.ListTransactionsResponse](ctx, client, MethodListTransactions, request)
}

func (client *Client) SweepExpired(ctx context.Context) (*wire.SweepResponse, error) {
	return invoke[wire.SweepResponse](ctx, client, MethodSweepExpired, &wire.SweepRequest{})
}

func (client *Client) Reconcile(ctx context.Context, request *wire.AccountRequest) (*wire.ReconciliationResponse, error) {
	return invoke[wire.ReconciliationResponse](ctx, client, MethodReconcile, request)
}

func (client *Client) ResolveIdentity(ctx context.Context, request *wire.ResolveIdentityRequest) (*wire.IdentityResponse, error) {
	return invoke[wire.IdentityResponse](ctx, client, MethodResolveIdentity, request)
}
