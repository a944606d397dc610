package grpcserver

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorPanic = "internal_panic"

type validatable interface {
	Validate() error
}

// NewServer builds a grpc.Server with recovery, request logging and request validation,
// and registers ledgerServer on it.
func NewServer(ledgerServer LedgerServiceServer, logger *zap.Logger, options ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	serverOptions := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(func(recovered any) error {
				logger.Error("grpc handler panic", zap.String("panic", fmt.Sprint(recovered)))
				return status.Error(codes.Internal, errorPanic)
			})),
			logging.UnaryServerInterceptor(interceptorLogger(logger), logging.WithLogOnEvents(logging.FinishCall)),
			validationInterceptor,
		),
	}, options...)
	server := grpc.NewServer(serverOptions...)
	RegisterLedgerServiceServer(server, ledgerServer)
	return server
}

func validationInterceptor(ctx context.Context, request any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if candidate, ok := request.(validatable); ok {
		if err := candidate.Validate(); err != nil {
			return nil, mapToGRPCError(err)
		}
	}
	return handler(ctx, request)
}

func interceptorLogger(logger *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(_ context.Context, level logging.Level, message string, fields ...any) {
		zapFields := make([]zap.Field, 0, len(fields)/2)
		for index := 0; index+1 < len(fields); index += 2 {
			key := fmt.Sprint(fields[index])
			zapFields = append(zapFields, zap.Any(key, fields[index+1]))
		}
		switch level {
		case logging.LevelDebug:
			logger.Debug(message, zapFields...)
		case logging.LevelInfo:
			logger.Info(message, zapFields...)
		case logging.LevelWarn:
			logger.Warn(message, zapFields...)
		case logging.LevelError:
			logger.Error(message, zapFields...)
		default:
			logger.Info(message, zapFields...)
		}
	})
}
