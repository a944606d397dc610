package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskTypeSweepExpired is the asynq task type for one expiry sweep.
const TaskTypeSweepExpired = "ledger:sweep_expired"

const sweepQueue = "maintenance"

// NewSweepTask builds the periodic sweep task. Retries are disabled because the next period sweeps again.
func NewSweepTask(interval time.Duration) *asynq.Task {
	return asynq.NewTask(TaskTypeSweepExpired, nil,
		asynq.Queue(sweepQueue),
		asynq.MaxRetry(0),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
}

// NewSweepHandler runs sweeper for every sweep task it receives.
func NewSweepHandler(sweeper Sweeper, logger *zap.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, task *asynq.Task) error {
		expired, err := sweeper.SweepExpired(ctx)
		if err != nil {
			return fmt.Errorf("sweep expired reservations: %w", err)
		}
		logger.Info("sweep task completed", zap.String("task_type", task.Type()), zap.Int("count", expired))
		return nil
	}
}

// AsynqWorker schedules and processes sweep tasks through Redis.
type AsynqWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	interval  time.Duration
	logger    *zap.Logger
}

// NewAsynqWorker wires an asynq server and scheduler for the sweep task.
func NewAsynqWorker(redisOpt asynq.RedisConnOpt, sweeper Sweeper, interval time.Duration, logger *zap.Logger) (*AsynqWorker, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSweepExpired, NewSweepHandler(sweeper, logger))
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{sweepQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("asynq task failed", zap.String("task_type", task.Type()), zap.Error(err))
		}),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	return &AsynqWorker{server: server, scheduler: scheduler, mux: mux, interval: interval, logger: logger}, nil
}

// Run registers the periodic task, processes it until ctx ends, then shuts both sides down.
func (worker *AsynqWorker) Run(ctx context.Context) error {
	schedule := fmt.Sprintf("@every %s", worker.interval)
	if _, err := worker.scheduler.Register(schedule, NewSweepTask(worker.interval)); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	if err := worker.server.Start(worker.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	if err := worker.scheduler.Start(); err != nil {
		worker.server.Shutdown()
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	worker.logger.Info("asynq sweeper started", zap.String("schedule", schedule))
	<-ctx.Done()
	worker.scheduler.Shutdown()
	worker.server.Shutdown()
	worker.logger.Info("asynq sweeper stopped")
	return nil
}
