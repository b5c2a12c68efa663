package deployupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// outcome — итог executions commit.
type outcome int

const (
	outcomeRunning outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeTimedOut
)

// Finalize завершает update по статусам его executions.
//
//   - все terminated → committed, новая топология каноническая
//   - есть failed/cancelled → failed, откат к снимку
//   - есть timed_out или executions выполняются дольше ExecutionTimeout →
//     failed, откат к снимку, ErrExecutionTimeout
//   - executions ещё выполняются в пределах таймаута → ErrExecutionsRunning
//
// Update не в updating — ErrInvalidState.
func (m *Manager) Finalize(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	u, err := m.updates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.State != domain.UpdateStateUpdating {
		return nil, fmt.Errorf("%w: cannot finalize update in %s", domain.ErrInvalidState, u.State)
	}

	logger := telemetry.WithDeploymentID(telemetry.WithUpdateID(m.logger, id.String()), u.DeploymentID)

	execs, err := m.executions.ListByIDs(ctx, u.ExecutionIDs)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	result, reason := m.evaluate(u, execs)

	switch result {
	case outcomeRunning:
		return nil, fmt.Errorf("%w: %s", domain.ErrExecutionsRunning, reason)

	case outcomeSucceeded:
		// Сначала CAS: проигравший параллельный finalize не трогает топологию.
		next := u.Clone()
		next.MarkCommitted(m.now())
		if err := m.updates.Transition(ctx, next, domain.UpdateStateUpdating); err != nil {
			return nil, fmt.Errorf("finalize update: %w", err)
		}
		m.transitioned(next)

		if err := m.deployments.SetTopology(ctx, next.DeploymentID, next.NewTopology, next.BlueprintID); err != nil {
			return nil, fmt.Errorf("finalize topology: %w", err)
		}

		logger.Info("update finalized", "state", next.State)
		return next, nil

	case outcomeTimedOut:
		m.expire(ctx, execs)
		_, err := m.fail(ctx, u, fmt.Errorf("%w: %s", domain.ErrExecutionTimeout, reason), logger)
		return nil, err

	default:
		failed, err := m.fail(ctx, u, fmt.Errorf("executions failed: %s", reason), logger)
		if failed == nil || isRollback(err) {
			return nil, err
		}
		// Неудача workflow — штатный исход finalize, а не ошибка вызова.
		return failed, nil
	}
}

// evaluate сводит статусы executions к одному исходу.
func (m *Manager) evaluate(u *domain.DeploymentUpdate, execs []domain.Execution) (outcome, string) {
	byID := make(map[string]domain.Execution, len(execs))
	for _, e := range execs {
		byID[e.ID] = e
	}

	var failed, timedOut, running []string
	for _, id := range u.ExecutionIDs {
		e, ok := byID[id]
		if !ok {
			failed = append(failed, id+" (missing)")
			continue
		}
		switch {
		case e.Status == domain.ExecutionStatusTimedOut:
			timedOut = append(timedOut, id)
		case e.Status == domain.ExecutionStatusFailed, e.Status == domain.ExecutionStatusCancelled:
			failed = append(failed, fmt.Sprintf("%s (%s)", id, e.Status))
		case e.Status.IsRunning():
			running = append(running, id)
		}
	}

	switch {
	case len(failed) > 0:
		return outcomeFailed, strings.Join(failed, ", ")
	case len(timedOut) > 0:
		return outcomeTimedOut, "timed out: " + strings.Join(timedOut, ", ")
	case len(running) > 0:
		if u.CommittedAt != nil && m.now().Sub(*u.CommittedAt) > m.executionTimeout {
			return outcomeTimedOut, fmt.Sprintf("still running after %s: %s", m.executionTimeout, strings.Join(running, ", "))
		}
		return outcomeRunning, strings.Join(running, ", ")
	default:
		return outcomeSucceeded, ""
	}
}

// expire помечает ещё выполняющиеся executions как timed_out.
func (m *Manager) expire(ctx context.Context, execs []domain.Execution) {
	if m.tracker == nil {
		return
	}
	for _, e := range execs {
		if !e.Status.IsRunning() {
			continue
		}
		if _, err := m.tracker.CompleteExecution(ctx, e.ID, domain.ExecutionStatusTimedOut, "execution timed out"); err != nil {
			telemetry.WithExecutionID(m.logger, e.ID).Error("failed to expire execution", "error", err)
		}
	}
}

// isRollback сообщает, что откат к снимку не удался.
func isRollback(err error) bool {
	return errors.Is(err, domain.ErrRollback)
}
