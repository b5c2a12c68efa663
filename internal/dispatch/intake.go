package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// Tracker принимает отчёты о ходе executions.
type Tracker interface {
	StartExecution(ctx context.Context, executionID string) error
	CompleteExecution(ctx context.Context, executionID string, status domain.ExecutionStatus, errMsg string) (bool, error)
}

// Intake обрабатывает отчёты workers из очереди завершений.
type Intake struct {
	tracker Tracker
	logger  *slog.Logger
}

// NewIntake создаёт Intake.
func NewIntake(tracker Tracker, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{tracker: tracker, logger: logger}
}

// Handle применяет отчёт.
//
// Ошибка возвращается только для сбоев, которые имеет смысл повторить.
// Отчёты о неизвестных executions и с некорректным статусом
// логируются и отбрасываются, повторы для завершённых игнорируются.
func (in *Intake) Handle(ctx context.Context, report domain.ExecutionReport) error {
	logger := telemetry.WithExecutionID(in.logger, report.ExecutionID)

	var err error
	switch {
	case report.Status == domain.ExecutionStatusStarted:
		err = in.tracker.StartExecution(ctx, report.ExecutionID)
	case report.Status.IsTerminal():
		_, err = in.tracker.CompleteExecution(ctx, report.ExecutionID, report.Status, report.Error)
	default:
		logger.Warn("execution report with unexpected status dropped", "status", report.Status)
		return nil
	}

	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrBadParameters) {
		logger.Warn("execution report dropped", "status", report.Status, "error", err)
		return nil
	}
	return err
}
