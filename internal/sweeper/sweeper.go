package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Sweeper expires overdue reservations. *ledger.Service satisfies it.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Lease grants exclusive sweeping rights to one replica for a period.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// ErrInvalidInterval rejects non-positive sweep intervals.
var ErrInvalidInterval = errors.New("sweep interval must be positive")

// Runner sweeps on a fixed interval until its context ends.
type Runner struct {
	sweeper  Sweeper
	interval time.Duration
	lease    Lease
	logger   *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLease makes the runner skip ticks it cannot acquire the lease for.
func WithLease(lease Lease) RunnerOption {
	return func(runner *Runner) {
		runner.lease = lease
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(runner *Runner) {
		if logger != nil {
			runner.logger = logger
		}
	}
}

// NewRunner returns a Runner that calls sweeper every interval.
func NewRunner(sweeper Sweeper, interval time.Duration, options ...RunnerOption) (*Runner, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	runner := &Runner{sweeper: sweeper, interval: interval, logger: zap.NewNop()}
	for _, option := range options {
		option(runner)
	}
	return runner, nil
}

// Run blocks until ctx is cancelled. Sweep failures are logged and retried on the next tick.
func (runner *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(runner.interval)
	defer ticker.Stop()
	runner.logger.Info("sweeper started", zap.Duration("interval", runner.interval))
	for {
		select {
		case <-ctx.Done():
			runner.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			runner.Tick(ctx)
		}
	}
}

// Tick runs a single sweep, honouring the lease when one is configured.
func (runner *Runner) Tick(ctx context.Context) (int, error) {
	if runner.lease != nil {
		acquired, err := runner.lease.Acquire(ctx)
		if err != nil {
			runner.logger.Warn("sweep lease unavailable", zap.Error(err))
			return 0, err
		}
		if !acquired {
			return 0, nil
		}
	}
	expired, err := runner.sweeper.SweepExpired(ctx)
	if err != nil {
		runner.logger.Error("sweep failed", zap.Error(err))
		return expired, err
	}
	if expired > 0 {
		runner.logger.Info("reservations expired", zap.Int("count", expired))
	}
	return expired, nil
}
