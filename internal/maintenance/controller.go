package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// Действия maintenance mode.
const (
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
)

// ValidActions — допустимые значения действия.
var ValidActions = []string{ActionActivate, ActionDeactivate}

// Controller — maintenance mode.
type Controller struct {
	store  domain.GateStore
	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Controller.
type Config struct {
	// Store — транзакционное хранилище состояния и executions.
	Store domain.GateStore

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	Logger *slog.Logger
}

// New создаёт Controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Controller{
		store:  cfg.Store,
		logger: logger,
		now:    clock,
	}
}

// Apply выполняет действие по имени.
// Неизвестное действие — ErrBadParameters.
func (c *Controller) Apply(ctx context.Context, action, requestedBy string) (domain.MaintenanceResult, error) {
	switch action {
	case ActionActivate:
		return c.Activate(ctx, requestedBy)
	case ActionDeactivate:
		return c.Deactivate(ctx)
	default:
		return domain.MaintenanceResult{}, fmt.Errorf("%w: Invalid action: %s, Valid action values are: %v",
			domain.ErrBadParameters, action, ValidActions)
	}
}

// Activate запрещает запуск новых executions.
//
// Если выполняющихся executions нет, сразу переходит в activated,
// иначе в activating с remaining_executions = число выполняющихся.
// Если состояние уже сохранено, возвращает его без изменений (Changed=false).
func (c *Controller) Activate(ctx context.Context, requestedBy string) (domain.MaintenanceResult, error) {
	var result domain.MaintenanceResult

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		existing, err := tx.GetMaintenance(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			result = domain.MaintenanceResult{State: *existing}
			return nil
		}

		running, err := tx.CountRunningExecutions(ctx)
		if err != nil {
			return err
		}

		now := c.now()
		state := domain.MaintenanceState{
			Status:                domain.MaintenanceActivating,
			ActivationRequestedAt: &now,
			RequestedBy:           requestedBy,
			RemainingExecutions:   running,
		}
		if running == 0 {
			state.Status = domain.MaintenanceActivated
		}

		if err := tx.PutMaintenance(ctx, state); err != nil {
			return err
		}
		result = domain.MaintenanceResult{State: state, Changed: true}
		return nil
	})
	if err != nil {
		return domain.MaintenanceResult{}, fmt.Errorf("activate maintenance mode: %w", err)
	}

	if result.Changed {
		c.logger.Info("maintenance mode requested",
			"status", result.State.Status,
			"remaining_executions", result.State.RemainingExecutions,
			"requested_by", requestedBy,
		)
	}
	observe(result.State)

	return result, nil
}

// Deactivate снимает maintenance mode из любого состояния.
// Если он уже выключен, возвращает Changed=false.
func (c *Controller) Deactivate(ctx context.Context) (domain.MaintenanceResult, error) {
	var existed bool

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		var err error
		existed, err = tx.DeleteMaintenance(ctx)
		return err
	})
	if err != nil {
		return domain.MaintenanceResult{}, fmt.Errorf("deactivate maintenance mode: %w", err)
	}

	if existed {
		c.logger.Info("maintenance mode deactivated")
	}

	state := domain.DeactivatedState()
	observe(state)

	return domain.MaintenanceResult{State: state, Changed: existed}, nil
}

// CurrentState возвращает текущее состояние.
// В activating remaining_executions пересчитывается по живому числу executions.
func (c *Controller) CurrentState(ctx context.Context) (domain.MaintenanceState, error) {
	var state domain.MaintenanceState

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		stored, err := tx.GetMaintenance(ctx)
		if err != nil {
			return err
		}
		if stored == nil {
			state = domain.DeactivatedState()
			return nil
		}

		state = *stored
		if state.Status == domain.MaintenanceActivating {
			running, err := tx.CountRunningExecutions(ctx)
			if err != nil {
				return err
			}
			state.RemainingExecutions = running
		}
		return nil
	})
	if err != nil {
		return domain.MaintenanceState{}, fmt.Errorf("get maintenance state: %w", err)
	}

	return state, nil
}

// MayStartExecution сообщает, разрешён ли сейчас запуск execution.
// Только для наблюдения: допуск с записью выполняет AdmitExecutions.
func (c *Controller) MayStartExecution(ctx context.Context, bypassMaintenance bool) (bool, error) {
	if bypassMaintenance {
		return true, nil
	}

	state, err := c.CurrentState(ctx)
	if err != nil {
		return false, err
	}
	return !state.BlocksExecutions(), nil
}

// AdmitExecutions атомарно проверяет допуск и регистрирует executions
// как pending. Пакет допускается целиком или не допускается вовсе:
// если хотя бы одному execution без bypass_maintenance запуск запрещён,
// возвращается ErrMaintenanceModeActive и ничего не записывается.
func (c *Controller) AdmitExecutions(ctx context.Context, execs []domain.Execution) error {
	if len(execs) == 0 {
		return nil
	}

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		stored, err := tx.GetMaintenance(ctx)
		if err != nil {
			return err
		}

		if stored != nil && stored.BlocksExecutions() {
			for _, e := range execs {
				if !e.BypassMaintenance {
					return fmt.Errorf("%w: status is %s", domain.ErrMaintenanceModeActive, stored.Status)
				}
			}
		}

		now := c.now()
		pending := make([]domain.Execution, len(execs))
		for i, e := range execs {
			e.Status = domain.ExecutionStatusPending
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			pending[i] = e
		}
		return tx.CreateExecutions(ctx, pending)
	})
	if err != nil {
		return fmt.Errorf("admit executions: %w", err)
	}

	return nil
}

// StartExecution отмечает, что worker начал выполнение (pending → started).
// Для execution в любом другом статусе ничего не делает.
func (c *Controller) StartExecution(ctx context.Context, executionID string) error {
	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		e, err := tx.GetExecution(ctx, executionID)
		if err != nil {
			return err
		}
		if e.Status != domain.ExecutionStatusPending {
			return nil
		}
		e.Status = domain.ExecutionStatusStarted
		return tx.UpdateExecution(ctx, e)
	})
	if err != nil {
		return fmt.Errorf("start execution %s: %w", executionID, err)
	}
	return nil
}

// CompleteExecution записывает финальный статус execution и продвигает
// обратный отсчёт maintenance mode в той же транзакции.
//
// Повторный отчёт для уже завершённого execution игнорируется
// (возвращает false).
func (c *Controller) CompleteExecution(ctx context.Context, executionID string, status domain.ExecutionStatus, errMsg string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %q is not a terminal execution status", domain.ErrBadParameters, status)
	}

	var (
		recorded bool
		state    *domain.MaintenanceState
	)

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		e, err := tx.GetExecution(ctx, executionID)
		if err != nil {
			return err
		}
		if e.Status.IsTerminal() {
			return nil
		}

		e.Finish(status, errMsg)
		if err := tx.UpdateExecution(ctx, e); err != nil {
			return err
		}
		recorded = true

		state, err = c.countdown(ctx, tx, false)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("complete execution %s: %w", executionID, err)
	}

	if !recorded {
		c.logger.Debug("duplicate execution report ignored", "execution_id", executionID, "status", status)
		return false, nil
	}

	telemetry.WithExecutionID(c.logger, executionID).Info("execution completed", "status", status)
	if state != nil {
		observe(*state)
	}

	return true, nil
}

// OnExecutionCompleted — hook завершения execution, который учитывается
// вне этого хранилища. В activating уменьшает remaining_executions на один
// и при достижении нуля переводит maintenance mode в activated.
func (c *Controller) OnExecutionCompleted(ctx context.Context) (domain.MaintenanceState, error) {
	return c.step(ctx, true)
}

// Reconcile выравнивает remaining_executions по живому числу executions
// и переводит activating в activated, если выполняющихся не осталось.
// Покрывает потерянные события завершения.
func (c *Controller) Reconcile(ctx context.Context) (domain.MaintenanceState, error) {
	return c.step(ctx, false)
}

func (c *Controller) step(ctx context.Context, decrement bool) (domain.MaintenanceState, error) {
	var state *domain.MaintenanceState

	err := c.store.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		var err error
		state, err = c.countdown(ctx, tx, decrement)
		return err
	})
	if err != nil {
		return domain.MaintenanceState{}, fmt.Errorf("maintenance countdown: %w", err)
	}

	if state == nil {
		return domain.DeactivatedState(), nil
	}
	observe(*state)
	return *state, nil
}

// countdown пересчитывает remaining_executions внутри транзакции.
//
// remaining = min(сохранённое (минус один при decrement), живое число),
// поэтому значение не возрастает. На нуле статус становится activated.
// Возвращает nil, если maintenance mode выключен.
func (c *Controller) countdown(ctx context.Context, tx domain.GateTx, decrement bool) (*domain.MaintenanceState, error) {
	stored, err := tx.GetMaintenance(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}
	if stored.Status != domain.MaintenanceActivating {
		return stored, nil
	}

	running, err := tx.CountRunningExecutions(ctx)
	if err != nil {
		return nil, err
	}

	remaining := stored.RemainingExecutions
	if decrement {
		remaining--
	}
	remaining = min(remaining, running)
	if remaining < 0 {
		remaining = 0
	}

	if remaining == stored.RemainingExecutions && remaining > 0 {
		return stored, nil
	}

	next := *stored
	next.RemainingExecutions = remaining
	if remaining == 0 {
		next.Status = domain.MaintenanceActivated
		c.logger.Info("maintenance mode activated", "requested_by", next.RequestedBy)
	}

	if err := tx.PutMaintenance(ctx, next); err != nil {
		return nil, err
	}
	return &next, nil
}

func observe(state domain.MaintenanceState) {
	switch state.Status {
	case domain.MaintenanceActivating:
		telemetry.MaintenanceStatus.Set(1)
	case domain.MaintenanceActivated:
		telemetry.MaintenanceStatus.Set(2)
	default:
		telemetry.MaintenanceStatus.Set(0)
	}
	telemetry.MaintenanceRemaining.Set(float64(state.RemainingExecutions))
}
