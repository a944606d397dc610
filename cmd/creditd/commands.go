package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/credits/internal/telemetry"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const commandTimeout = 5 * time.Minute

func newSweepCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue reservations once and print the count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return withService(ctx, cfg, func(ctx context.Context, ledgerService *ledger.Service) error {
				expired, err := ledgerService.SweepExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d\n", expired)
				return nil
			})
		},
	}
}

func newMigrateCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			backend, err := openBackend(ctx, cfg, backendOptions{migrate: true}, logger)
			if err != nil {
				return err
			}
			backend.close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", cfg.Store)
			return nil
		},
	}
}

func newReconcileCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile ACCOUNT_ID...",
		Short: "Compare materialized balances with the transaction log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			return withService(ctx, cfg, func(ctx context.Context, ledgerService *ledger.Service) error {
				mismatched := 0
				for _, rawAccountID := range args {
					accountID, err := ledger.NewAccountID(rawAccountID)
					if err != nil {
						return err
					}
					reconciliation, err := ledgerService.Reconcile(ctx, accountID)
					if err != nil {
						return err
					}
					state := "ok"
					if !reconciliation.Consistent() {
						state = "mismatch"
						mismatched++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tbalance=%d\tlog_sum=%d\ttransactions=%d\t%s\n",
						accountID, reconciliation.Materialized, reconciliation.Recomputed, reconciliation.TransactionCount, state)
				}
				if mismatched > 0 {
					return fmt.Errorf("%d account(s) failed reconciliation", mismatched)
				}
				return nil
			})
		},
	}
}

// withService opens the configured store for a one-shot command.
func withService(ctx context.Context, cfg *runtimeConfig, fn func(ctx context.Context, ledgerService *ledger.Service) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(ctx, cfg, backendOptions{migrate: cfg.AutoMigrate}, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	ledgerService, err := newLedgerService(cfg, backend.store, telemetry.NewZapOperationLogger(logger))
	if err != nil {
		return err
	}
	return fn(ctx, ledgerService)
}
