package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// Default configuration values.
const (
	defaultExecutionTimeout = time.Hour
	defaultBatchSize        = 100
)

// Gate — maintenance gate: финальные статусы executions и сверка счётчика.
type Gate interface {
	CompleteExecution(ctx context.Context, executionID string, status domain.ExecutionStatus, errMsg string) (bool, error)
	Reconcile(ctx context.Context) (domain.MaintenanceState, error)
}

// Reconciler — периодическая сверка executions и maintenance mode.
type Reconciler struct {
	gate             Gate
	executions       domain.ExecutionRepository
	executionTimeout time.Duration
	batchSize        int
	now              func() time.Time
	logger           *slog.Logger
}

// Config — конфигурация Reconciler.
type Config struct {
	Gate       Gate
	Executions domain.ExecutionRepository

	// ExecutionTimeout — после него pending/started execution считается
	// зависшим (default: 1h).
	ExecutionTimeout time.Duration

	// BatchSize — сколько зависших executions обрабатывается за тик (default: 100).
	BatchSize int

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	Logger *slog.Logger
}

// New создаёт Reconciler.
func New(cfg Config) *Reconciler {
	timeout := cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = defaultExecutionTimeout
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		gate:             cfg.Gate,
		executions:       cfg.Executions,
		executionTimeout: timeout,
		batchSize:        batchSize,
		now:              clock,
		logger:           logger,
	}
}

// Tick выполняет одну сверку.
//
// 1. Помечает зависшие executions как timed_out
// 2. Сверяет maintenance mode с живым числом executions
//
// Ошибка одного execution не блокирует обработку остальных.
func (r *Reconciler) Tick(ctx context.Context) error {
	expired, err := r.sweep(ctx)
	if err != nil {
		return err
	}

	state, err := r.gate.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile maintenance: %w", err)
	}

	if expired > 0 || state.Status != domain.MaintenanceDeactivated {
		r.logger.Info("reconcile tick completed",
			"expired", expired,
			"maintenance_status", state.Status,
			"remaining_executions", state.RemainingExecutions,
		)
	}

	return nil
}

// sweep завершает executions старше ExecutionTimeout.
func (r *Reconciler) sweep(ctx context.Context) (int, error) {
	deadline := r.now().Add(-r.executionTimeout)

	stale, err := r.executions.ListRunningCreatedBefore(ctx, deadline, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale executions: %w", err)
	}

	var expired int
	for _, e := range stale {
		logger := telemetry.WithExecutionID(r.logger, e.ID)

		msg := fmt.Sprintf("no completion report within %s", r.executionTimeout)
		recorded, err := r.gate.CompleteExecution(ctx, e.ID, domain.ExecutionStatusTimedOut, msg)
		if err != nil {
			logger.Error("failed to expire execution", "error", err)
			continue
		}
		if recorded {
			expired++
			logger.Warn("execution timed out",
				"workflow_id", e.WorkflowID,
				"deployment_id", e.DeploymentID,
				"created_at", e.CreatedAt,
			)
		}
	}

	return expired, nil
}
