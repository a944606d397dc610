package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/credits/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/credits/internal/httpapi"
	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/internal/sweeper"
	"github.com/MarkoPoloResearchLab/credits/internal/telemetry"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func runServe(ctx context.Context, cfg *runtimeConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(ctx, cfg, backendOptions{migrate: cfg.AutoMigrate, collectMetrics: true}, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	operationLogger := telemetry.MultiLogger{
		telemetry.NewZapOperationLogger(logger),
		telemetry.NewMetricsLogger(prometheus.DefaultRegisterer),
	}
	ledgerService, err := newLedgerService(cfg, backend.store, operationLogger)
	if err != nil {
		return err
	}
	resolver, err := identity.NewResolver(backend.links, backend.accounts, clock)
	if err != nil {
		return fmt.Errorf("identity resolver init: %w", err)
	}

	var router *gin.Engine
	httpCfg := httpapi.Config{
		ListenAddr:     cfg.HTTPListenAddr,
		AllowedOrigins: httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.HTTPListenAddr != "" {
		if err := httpCfg.Validate(); err != nil {
			return err
		}
		router = httpapi.NewRouter(httpCfg, ledgerService, resolver, logger)
	}

	sweepLoop, closeSweep, err := newSweepLoop(cfg, ledgerService, logger)
	if err != nil {
		return err
	}
	defer closeSweep()

	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := grpcserver.NewServer(grpcserver.NewLedgerServer(ledgerService, resolver), logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serveGRPC(groupCtx, grpcServer, listener, logger)
	})
	if router != nil {
		group.Go(func() error {
			return httpapi.Run(groupCtx, httpCfg, router, logger)
		})
	}
	if sweepLoop != nil {
		group.Go(func() error {
			return sweepLoop(groupCtx)
		})
	}

	return group.Wait()
}

func serveGRPC(ctx context.Context, grpcServer *grpc.Server, listener net.Listener, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server starting", zap.String("listen_addr", listener.Addr().String()))
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}

// newSweepLoop returns the background expiry loop for the configured mode, or nil when sweeping is off.
func newSweepLoop(cfg *runtimeConfig, ledgerService *ledger.Service, logger *zap.Logger) (func(context.Context) error, func(), error) {
	switch cfg.SweepMode {
	case sweepModeOff:
		logger.Info("expiry sweep disabled")
		return nil, func() {}, nil
	case sweepModeAsynq:
		worker, err := sweeper.NewAsynqWorker(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, ledgerService, cfg.SweepInterval, logger)
		if err != nil {
			return nil, nil, err
		}
		return worker.Run, func() {}, nil
	}

	options := []sweeper.RunnerOption{sweeper.WithLogger(logger)}
	closeLease := func() {}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		options = append(options, sweeper.WithLease(sweeper.NewRedisLease(client, leaseHolder(), 2*cfg.SweepInterval)))
		closeLease = func() { _ = client.Close() }
	}
	runner, err := sweeper.NewRunner(ledgerService, cfg.SweepInterval, options...)
	if err != nil {
		closeLease()
		return nil, nil, err
	}
	return runner.Run, closeLease, nil
}

func newLedgerService(cfg *runtimeConfig, store ledger.Store, operationLogger ledger.OperationLogger) (*ledger.Service, error) {
	options := []ledger.ServiceOption{
		ledger.WithReservationTTL(cfg.ReservationTTL),
		ledger.WithAccountLocker(ledger.NewKeyedLocker(cfg.LockTimeout)),
	}
	if operationLogger != nil {
		options = append(options, ledger.WithOperationLogger(operationLogger))
	}
	if !cfg.AutoCreateAccounts {
		options = append(options, ledger.WithoutAccountAutoCreate())
	}
	if cfg.IDGenerator == idGeneratorSnowflake {
		node, err := snowflake.NewNode(cfg.SnowflakeNode)
		if err != nil {
			return nil, fmt.Errorf("snowflake node: %w", err)
		}
		options = append(options, ledger.WithIDGenerator(func() string { return node.Generate().String() }))
	}
	ledgerService, err := ledger.NewService(store, clock, options...)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	return ledgerService, nil
}

func leaseHolder() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "creditd"
	}
	return hostname + "-" + uuid.NewString()
}

func clock() int64 {
	return time.Now().UTC().Unix()
}
