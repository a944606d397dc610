package telemetry

import (
	"context"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	metricsNamespace = "credit_ledger"
	operationSweep   = "sweep"
	statusError      = "error"
)

// ZapOperationLogger writes one structured line per ledger operation.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger returns a logger that reports through logger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger}
}

func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.Duration("duration", entry.Duration),
	}
	if !entry.AccountID.IsZero() {
		fields = append(fields, zap.String("account_id", entry.AccountID.String()))
	}
	if !entry.ReservationID.IsZero() {
		fields = append(fields, zap.String("reservation_id", entry.ReservationID.String()))
	}
	if transactionID := entry.TransactionID.String(); transactionID != "" {
		fields = append(fields, zap.String("transaction_id", transactionID))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if kind := entry.Kind.String(); kind != "" {
		fields = append(fields, zap.String("kind", kind))
	}
	if !entry.IdempotencyKey.IsZero() {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if entry.Operation == operationSweep {
		fields = append(fields, zap.Int("count", entry.Count))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		if ledger.IsValidationError(entry.Error) {
			operationLogger.logger.Info("ledger operation rejected", fields...)
			return
		}
		operationLogger.logger.Warn("ledger operation failed", fields...)
		return
	}
	operationLogger.logger.Info("ledger operation", fields...)
}

// MetricsLogger records ledger operations as Prometheus metrics.
type MetricsLogger struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	expired    prometheus.Counter
}

// NewMetricsLogger registers the ledger metrics with registerer.
func NewMetricsLogger(registerer prometheus.Registerer) *MetricsLogger {
	factory := promauto.With(registerer)
	return &MetricsLogger{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		expired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reservations_expired_total",
			Help:      "Reservations moved to expired by sweeps.",
		}),
	}
}

func (metrics *MetricsLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	status := entry.Status
	if entry.Error != nil {
		status = statusError
	}
	metrics.operations.WithLabelValues(entry.Operation, status).Inc()
	metrics.durations.WithLabelValues(entry.Operation).Observe(entry.Duration.Seconds())
	if entry.Operation == operationSweep && entry.Count > 0 {
		metrics.expired.Add(float64(entry.Count))
	}
}

// MultiLogger fans one operation out to several loggers.
type MultiLogger []ledger.OperationLogger

func (loggers MultiLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
