package deployupdate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/engine"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// Default configuration values.
const (
	defaultExecutionTimeout = time.Hour
)

// Dispatcher — пакетный путь отправки executions.
type Dispatcher interface {
	PrepareWorkflow(ctx context.Context, req dispatch.WorkflowRequest) (*dispatch.Prepared, error)
	Admit(ctx context.Context, batch []*dispatch.Prepared) error
	Send(ctx context.Context, p *dispatch.Prepared) (dispatch.Handle, error)
	Abort(ctx context.Context, p *dispatch.Prepared, reason string)
}

// Tracker записывает финальные статусы executions.
type Tracker interface {
	CompleteExecution(ctx context.Context, executionID string, status domain.ExecutionStatus, errMsg string) (bool, error)
}

// Manager управляет deployment updates.
type Manager struct {
	updates     domain.UpdateRepository
	deployments domain.DeploymentRepository
	executions  domain.ExecutionRepository
	dispatcher  Dispatcher
	tracker     Tracker

	locks            *lockTable
	executionTimeout time.Duration
	now              func() time.Time
	logger           *slog.Logger
}

// Config — конфигурация Manager.
type Config struct {
	Updates     domain.UpdateRepository
	Deployments domain.DeploymentRepository
	Executions  domain.ExecutionRepository
	Dispatcher  Dispatcher
	Tracker     Tracker

	// ExecutionTimeout — сколько executions commit могут выполняться
	// до того, как finalize признает их зависшими (default: 1h).
	ExecutionTimeout time.Duration

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	Logger *slog.Logger
}

// New создаёт Manager.
func New(cfg Config) *Manager {
	timeout := cfg.ExecutionTimeout
	if timeout <= 0 {
		timeout = defaultExecutionTimeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		updates:          cfg.Updates,
		deployments:      cfg.Deployments,
		executions:       cfg.Executions,
		dispatcher:       cfg.Dispatcher,
		tracker:          cfg.Tracker,
		locks:            newLockTable(),
		executionTimeout: timeout,
		now:              clock,
		logger:           logger,
	}
}

// Stage создаёт update в staged.
//
// Шаги берутся из blueprint.Steps или вычисляются диффом текущей
// и новой топологии. Возвращает ErrConflict, если у deployment уже
// есть update в staged/updating.
func (m *Manager) Stage(ctx context.Context, deploymentID string, blueprint domain.Blueprint) (*domain.DeploymentUpdate, error) {
	dep, err := m.deployments.Get(ctx, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("get deployment: %w", err)
	}

	if err := engine.ValidateTopology(&blueprint.Topology); err != nil {
		return nil, fmt.Errorf("validate blueprint %s: %w", blueprint.ID, err)
	}

	var steps []domain.UpdateStep
	if len(blueprint.Steps) > 0 {
		steps = normalizeIndices(blueprint.Steps)
		if err := engine.ValidateOrder(steps, &dep.Topology, &blueprint.Topology); err != nil {
			return nil, fmt.Errorf("validate steps: %w", err)
		}
	} else {
		steps, err = engine.Diff(&dep.Topology, &blueprint.Topology)
		if err != nil {
			return nil, fmt.Errorf("diff topology: %w", err)
		}
	}

	u := &domain.DeploymentUpdate{
		ID:           uuid.New(),
		DeploymentID: deploymentID,
		BlueprintID:  blueprint.ID,
		State:        domain.UpdateStateStaged,
		OldTopology:  dep.Topology.Clone(),
		NewTopology:  blueprint.Topology.Clone(),
		Steps:        steps,
		CreatedAt:    m.now(),
	}

	if err := m.updates.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("stage update: %w", err)
	}

	m.transitioned(u)
	telemetry.WithUpdateID(m.logger, u.ID.String()).Info("update staged",
		"deployment_id", deploymentID,
		"blueprint_id", blueprint.ID,
		"steps", len(steps),
	)

	return u, nil
}

// normalizeIndices нумерует шаги по порядку, если индексы не заданы.
func normalizeIndices(steps []domain.UpdateStep) []domain.UpdateStep {
	out := append([]domain.UpdateStep(nil), steps...)
	for _, s := range out {
		if s.Index != 0 {
			return out
		}
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

// AddStep добавляет шаг к staged update со следующим ordering_index.
// Новый порядок шагов проверяется относительно зависимостей.
func (m *Manager) AddStep(ctx context.Context, id uuid.UUID, op domain.StepOperation, et domain.EntityType, entityID string) (domain.UpdateStep, error) {
	u, err := m.updates.Get(ctx, id)
	if err != nil {
		return domain.UpdateStep{}, err
	}

	candidate, err := u.AppendStep(op, et, entityID)
	if err != nil {
		return domain.UpdateStep{}, err
	}
	if err := engine.ValidateOrder(u.Steps, &u.OldTopology, &u.NewTopology); err != nil {
		return domain.UpdateStep{}, fmt.Errorf("add step %s: %w", candidate.Key(), err)
	}

	step, err := m.updates.AppendStep(ctx, id, candidate)
	if err != nil {
		return domain.UpdateStep{}, fmt.Errorf("add step %s: %w", candidate.Key(), err)
	}

	telemetry.WithUpdateID(m.logger, id.String()).Debug("step added",
		"operation", step.Operation,
		"entity", step.Key(),
		"ordering_index", step.Index,
	)

	return step, nil
}

// Get возвращает update по ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	return m.updates.Get(ctx, id)
}

// List возвращает updates по фильтру.
func (m *Manager) List(ctx context.Context, filter domain.UpdateFilter) ([]domain.DeploymentUpdate, error) {
	return m.updates.List(ctx, filter)
}

// Discard отбрасывает staged update без commit и освобождает deployment.
func (m *Manager) Discard(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	u, err := m.updates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.State != domain.UpdateStateStaged {
		return nil, fmt.Errorf("%w: cannot discard update in %s", domain.ErrInvalidState, u.State)
	}

	if !m.locks.TryAcquire(u.DeploymentID) {
		return nil, fmt.Errorf("%w: commit in progress for deployment %s", domain.ErrConflict, u.DeploymentID)
	}
	defer m.locks.Release(u.DeploymentID)

	u.MarkDiscarded(m.now())
	if err := m.updates.Transition(ctx, u, domain.UpdateStateStaged); err != nil {
		return nil, fmt.Errorf("discard update: %w", err)
	}

	m.transitioned(u)
	telemetry.WithUpdateID(m.logger, id.String()).Info("update discarded", "deployment_id", u.DeploymentID)

	return u, nil
}

func (m *Manager) transitioned(u *domain.DeploymentUpdate) {
	telemetry.UpdateTransitionsTotal.WithLabelValues(string(u.State)).Inc()
}

// errString возвращает текст ошибки или пустую строку.
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
