package deployupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/engine"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// Commit применяет staged update и запускает нужные workflows.
//
// Ошибки:
//   - ErrInvalidState — update не в staged
//   - ErrConflict — commit этого deployment уже выполняется
//   - ErrNotFound — у deployment нет нужного workflow или плагина
//   - ErrMaintenanceModeActive — допуск запрещён, update остаётся staged
//   - ErrDispatch / ErrExecutionTimeout — отправка не удалась, update в failed,
//     топология откатана к снимку
//   - ErrRollback — откат не удался, update в failed с rollback_incomplete
//
// Секция deployment удерживается только на время Commit. После перехода
// в updating deployment занят самим состоянием update до Finalize.
func (m *Manager) Commit(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	u, err := m.updates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.State != domain.UpdateStateStaged {
		return nil, fmt.Errorf("%w: cannot commit update in %s", domain.ErrInvalidState, u.State)
	}

	if !m.locks.TryAcquire(u.DeploymentID) {
		return nil, fmt.Errorf("%w: commit already in progress for deployment %s", domain.ErrConflict, u.DeploymentID)
	}
	defer m.locks.Release(u.DeploymentID)

	return m.commitLocked(ctx, id)
}

// commitLocked выполняется внутри секции deployment.
func (m *Manager) commitLocked(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	// Перечитываем: состояние могло измениться до захвата секции.
	u, err := m.updates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.State != domain.UpdateStateStaged {
		return nil, fmt.Errorf("%w: cannot commit update in %s", domain.ErrInvalidState, u.State)
	}

	logger := telemetry.WithDeploymentID(telemetry.WithUpdateID(m.logger, id.String()), u.DeploymentID)

	dep, err := m.deployments.Get(ctx, u.DeploymentID)
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}

	// Всё, что может отказать без побочных эффектов, делаем до допуска.
	if err := engine.ValidateOrder(u.Steps, &dep.Topology, &u.NewTopology); err != nil {
		return nil, fmt.Errorf("validate steps: %w", err)
	}
	applied, err := engine.ApplySteps(dep.Topology, u.NewTopology, u.Steps)
	if err != nil {
		return nil, fmt.Errorf("apply steps: %w", err)
	}

	batch, err := m.prepare(ctx, u, dep)
	if err != nil {
		return nil, err
	}

	if err := m.dispatcher.Admit(ctx, batch); err != nil {
		logger.Info("commit denied", "error", err)
		return nil, fmt.Errorf("commit update: %w", err)
	}

	executionIDs := make([]string, len(batch))
	for i, p := range batch {
		executionIDs[i] = p.Execution.ID
	}

	next := u.Clone()
	next.NewTopology = applied
	next.MarkUpdating(executionIDs, m.now())
	if err := m.updates.Transition(ctx, next, domain.UpdateStateStaged); err != nil {
		m.abort(ctx, batch, "commit aborted")
		return nil, fmt.Errorf("commit update: %w", err)
	}
	m.transitioned(next)

	if err := m.deployments.SetTopology(ctx, dep.ID, applied, ""); err != nil {
		m.abort(ctx, batch, "commit aborted")
		_, err = m.fail(ctx, next, fmt.Errorf("apply topology: %w", err), logger)
		return nil, err
	}

	for i, p := range batch {
		if _, err := m.dispatcher.Send(ctx, p); err != nil {
			m.abort(ctx, batch[i+1:], "commit aborted")
			_, err = m.fail(ctx, next, err, logger)
			return nil, err
		}
	}

	logger.Info("update committed", "executions", executionIDs)
	return next, nil
}

// requiredWorkflows возвращает workflows, нужные для шагов, в порядке запуска.
//
//	node add                      → install
//	node modify, relationship *   → update
//	node remove                   → uninstall
func requiredWorkflows(steps []domain.UpdateStep) []string {
	need := make(map[string]bool)
	for _, s := range steps {
		switch {
		case s.EntityType == domain.EntityNode && s.Operation == domain.StepAdd:
			need[domain.WorkflowInstall] = true
		case s.EntityType == domain.EntityNode && s.Operation == domain.StepRemove:
			need[domain.WorkflowUninstall] = true
		case s.EntityType == domain.EntityNode, s.EntityType == domain.EntityRelationship:
			need[domain.WorkflowUpdate] = true
		}
	}

	out := make([]string, 0, len(need))
	for _, name := range []string{domain.WorkflowInstall, domain.WorkflowUpdate, domain.WorkflowUninstall} {
		if need[name] {
			out = append(out, name)
		}
	}
	return out
}

// prepare строит executions для всех нужных workflows.
func (m *Manager) prepare(ctx context.Context, u *domain.DeploymentUpdate, dep *domain.Deployment) ([]*dispatch.Prepared, error) {
	names := requiredWorkflows(u.Steps)
	batch := make([]*dispatch.Prepared, 0, len(names))

	for _, name := range names {
		wf, ok := dep.Workflows[name]
		if !ok {
			return nil, fmt.Errorf("%w: deployment %s has no %s workflow", domain.ErrNotFound, dep.ID, name)
		}

		params := make(map[string]any, len(wf.Parameters)+1)
		for k, v := range wf.Parameters {
			params[k] = v
		}
		params["update_id"] = u.ID.String()

		updateID := u.ID
		p, err := m.dispatcher.PrepareWorkflow(ctx, dispatch.WorkflowRequest{
			Name:         name,
			Workflow:     wf,
			Plugins:      dep.Plugins,
			BlueprintID:  dep.BlueprintID,
			DeploymentID: dep.ID,
			Parameters:   params,
			UpdateID:     &updateID,
		})
		if err != nil {
			return nil, fmt.Errorf("prepare %s workflow: %w", name, err)
		}
		batch = append(batch, p)
	}

	return batch, nil
}

func (m *Manager) abort(ctx context.Context, batch []*dispatch.Prepared, reason string) {
	for _, p := range batch {
		m.dispatcher.Abort(ctx, p, reason)
	}
}

// fail переводит update в failed и откатывает топологию к снимку.
// Откат выполняется только после сохранения failed, чтобы проигравший
// параллельный вызов не трогал топологию.
// Возвращает сохранённый update и исходную причину; если откат не удался,
// причина идёт вместе с ErrRollback. Если failed не удалось сохранить,
// update равен nil.
func (m *Manager) fail(ctx context.Context, u *domain.DeploymentUpdate, cause error, logger *slog.Logger) (*domain.DeploymentUpdate, error) {
	// Откат должен пройти даже при отменённом контексте вызывающего.
	ctx = context.WithoutCancel(ctx)

	next := u.Clone()
	next.MarkFailed(errString(cause), m.now())

	if err := m.updates.Transition(ctx, next, u.State); err != nil {
		logger.Error("failed to persist failed update", "error", err)
		return nil, errors.Join(cause, err)
	}
	m.transitioned(next)

	rollbackErr := m.deployments.SetTopology(ctx, next.DeploymentID, next.OldTopology, "")
	if rollbackErr != nil {
		logger.Error("rollback failed, operator intervention required", "error", rollbackErr)
		next.RollbackIncomplete = true
		if err := m.updates.Transition(ctx, next, domain.UpdateStateFailed); err != nil {
			logger.Error("failed to flag incomplete rollback", "error", err)
		}
	}

	logger.Warn("update failed", "error", cause, "rollback_incomplete", next.RollbackIncomplete)

	if rollbackErr != nil {
		return next, fmt.Errorf("%w (%w: %w)", cause, domain.ErrRollback, rollbackErr)
	}
	return next, cause
}
