package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// ManagementQueue — фиксированная логическая очередь управления.
const ManagementQueue = "helmsman.management"

// ContextTypeWorkflow — тип контекста для executions workflows.
const ContextTypeWorkflow = "workflow"

// Виды отправок для метрик.
const (
	kindWorkflow = "workflow"
	kindSystem   = "system"
)

// Channel — внешний канал задач.
type Channel interface {
	// PublishTask передаёт сообщение в очередь. Может блокироваться,
	// пока канал не примет сообщение.
	PublishTask(ctx context.Context, msg domain.TaskMessage) error
}

// Gate — maintenance gate, через который проходят executions.
type Gate interface {
	AdmitExecutions(ctx context.Context, execs []domain.Execution) error
	CompleteExecution(ctx context.Context, executionID string, status domain.ExecutionStatus, errMsg string) (bool, error)
}

// WorkflowRequest — запрос на запуск workflow deployment.
type WorkflowRequest struct {
	// Name — имя workflow (install, update, ...).
	Name string

	// Workflow — объявление workflow: операция и плагин.
	Workflow domain.WorkflowDescriptor

	// Plugins — плагины deployment, среди которых ищется плагин workflow.
	Plugins []domain.PluginDescriptor

	BlueprintID  string
	DeploymentID string

	// ExecutionID — если пуст, генерируется.
	ExecutionID string

	Parameters        map[string]any
	BypassMaintenance bool

	// UpdateID — deployment update, запустивший execution.
	UpdateID *uuid.UUID
}

// SystemWorkflowRequest — запрос на запуск системного workflow.
type SystemWorkflowRequest struct {
	WorkflowID string

	// TaskID — он же execution_id. Если пуст, генерируется.
	TaskID string

	// TaskMapping — имя задачи, которую выполнит worker.
	TaskMapping string

	// Deployment — nil для workflows уровня кластера.
	Deployment *domain.Deployment

	Parameters        map[string]any
	BypassMaintenance bool
}

// Handle — результат отправки, коррелируется по ExecutionID.
type Handle struct {
	ExecutionID string    `json:"execution_id"`
	Queue       string    `json:"queue"`
	SentAt      time.Time `json:"sent_at"`
}

// Prepared — подготовленный, но ещё не допущенный и не отправленный execution.
type Prepared struct {
	Execution domain.Execution
	Message   domain.TaskMessage
	kind      string
}

// Dispatcher строит контекст execution и отправляет его в Channel.
type Dispatcher struct {
	channel     Channel
	credentials CredentialProvider
	gate        Gate
	logger      *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	Channel     Channel
	Credentials CredentialProvider
	Gate        Gate
	Logger      *slog.Logger
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		channel:     cfg.Channel,
		credentials: cfg.Credentials,
		gate:        cfg.Gate,
		logger:      logger,
	}
}

// DispatchWorkflow запускает workflow deployment.
//
// Ошибки: ErrNotFound (плагин workflow не найден), ErrMaintenanceModeActive
// (допуск запрещён), ErrDispatch (канал не принял сообщение).
func (d *Dispatcher) DispatchWorkflow(ctx context.Context, req WorkflowRequest) (Handle, error) {
	p, err := d.PrepareWorkflow(ctx, req)
	if err != nil {
		return Handle{}, err
	}
	return d.admitAndSend(ctx, p)
}

// DispatchSystemWorkflow запускает системный workflow. Контракт тот же,
// что у DispatchWorkflow; task_id используется как execution_id.
func (d *Dispatcher) DispatchSystemWorkflow(ctx context.Context, req SystemWorkflowRequest) (Handle, error) {
	p, err := d.PrepareSystemWorkflow(ctx, req)
	if err != nil {
		return Handle{}, err
	}
	return d.admitAndSend(ctx, p)
}

func (d *Dispatcher) admitAndSend(ctx context.Context, p *Prepared) (Handle, error) {
	if err := d.Admit(ctx, []*Prepared{p}); err != nil {
		return Handle{}, err
	}
	return d.Send(ctx, p)
}

// PrepareWorkflow строит execution и сообщение для workflow deployment.
func (d *Dispatcher) PrepareWorkflow(ctx context.Context, req WorkflowRequest) (*Prepared, error) {
	plugin, err := resolvePlugin(req.Workflow.Plugin, req.Plugins)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", req.Name, err)
	}

	token, err := d.token(ctx)
	if err != nil {
		return nil, err
	}

	executionID := req.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	execCtx := domain.ExecutionContext{
		Type:              ContextTypeWorkflow,
		ExecutionID:       executionID,
		TaskID:            executionID,
		WorkflowID:        req.Name,
		TaskName:          req.Workflow.Operation,
		TaskTarget:        ManagementQueue,
		BlueprintID:       req.BlueprintID,
		DeploymentID:      req.DeploymentID,
		Plugin:            plugin,
		RestToken:         token,
		BypassMaintenance: req.BypassMaintenance,
	}

	return &Prepared{
		Execution: domain.Execution{
			ID:                executionID,
			WorkflowID:        req.Name,
			DeploymentID:      req.DeploymentID,
			BlueprintID:       req.BlueprintID,
			UpdateID:          req.UpdateID,
			BypassMaintenance: req.BypassMaintenance,
			Parameters:        req.Parameters,
		},
		Message: domain.TaskMessage{
			ExecutionID: executionID,
			Queue:       ManagementQueue,
			Context:     execCtx,
			Parameters:  req.Parameters,
		},
		kind: kindWorkflow,
	}, nil
}

// PrepareSystemWorkflow строит execution и сообщение для системного workflow.
func (d *Dispatcher) PrepareSystemWorkflow(ctx context.Context, req SystemWorkflowRequest) (*Prepared, error) {
	token, err := d.token(ctx)
	if err != nil {
		return nil, err
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.New().String()
	}

	execCtx := domain.ExecutionContext{
		Type:              ContextTypeWorkflow,
		ExecutionID:       taskID,
		TaskID:            taskID,
		WorkflowID:        req.WorkflowID,
		TaskName:          req.TaskMapping,
		TaskTarget:        ManagementQueue,
		RestToken:         token,
		BypassMaintenance: req.BypassMaintenance,
	}

	execution := domain.Execution{
		ID:                taskID,
		WorkflowID:        req.WorkflowID,
		IsSystem:          true,
		BypassMaintenance: req.BypassMaintenance,
		Parameters:        req.Parameters,
	}

	if req.Deployment != nil {
		execCtx.BlueprintID = req.Deployment.BlueprintID
		execCtx.DeploymentID = req.Deployment.ID
		execution.BlueprintID = req.Deployment.BlueprintID
		execution.DeploymentID = req.Deployment.ID
	}

	return &Prepared{
		Execution: execution,
		Message: domain.TaskMessage{
			ExecutionID: taskID,
			Queue:       ManagementQueue,
			Context:     execCtx,
			Parameters:  req.Parameters,
		},
		kind: kindSystem,
	}, nil
}

// Admit допускает пакет executions одним атомарным решением gate.
func (d *Dispatcher) Admit(ctx context.Context, batch []*Prepared) error {
	execs := make([]domain.Execution, len(batch))
	for i, p := range batch {
		execs[i] = p.Execution
	}

	if err := d.gate.AdmitExecutions(ctx, execs); err != nil {
		if errors.Is(err, domain.ErrMaintenanceModeActive) {
			for _, p := range batch {
				telemetry.DispatchTotal.WithLabelValues(p.kind, "denied").Inc()
			}
		}
		return err
	}
	return nil
}

// Send отправляет допущенный execution в канал. Без повторов.
//
// При ошибке execution помечается failed (timed_out, если истёк дедлайн
// контекста), а ошибка оборачивает ErrDispatch или ErrExecutionTimeout.
func (d *Dispatcher) Send(ctx context.Context, p *Prepared) (Handle, error) {
	logger := telemetry.WithExecutionID(d.logger, p.Execution.ID)

	if err := d.channel.PublishTask(ctx, p.Message); err != nil {
		telemetry.DispatchTotal.WithLabelValues(p.kind, "failed").Inc()

		sentinel, status := domain.ErrDispatch, domain.ExecutionStatusFailed
		if errors.Is(err, context.DeadlineExceeded) {
			sentinel, status = domain.ErrExecutionTimeout, domain.ExecutionStatusTimedOut
		}

		// Контекст вызывающего может быть уже отменён.
		if _, cerr := d.gate.CompleteExecution(context.WithoutCancel(ctx), p.Execution.ID, status, err.Error()); cerr != nil {
			logger.Error("failed to record dispatch failure", "error", cerr)
		}

		logger.Warn("dispatch failed", "workflow_id", p.Execution.WorkflowID, "error", err)
		return Handle{}, fmt.Errorf("%w: execution %s: %w", sentinel, p.Execution.ID, err)
	}

	telemetry.DispatchTotal.WithLabelValues(p.kind, "sent").Inc()
	logger.Info("execution dispatched",
		"workflow_id", p.Execution.WorkflowID,
		"deployment_id", p.Execution.DeploymentID,
		"queue", p.Message.Queue,
	)

	return Handle{
		ExecutionID: p.Execution.ID,
		Queue:       p.Message.Queue,
		SentAt:      time.Now(),
	}, nil
}

// Abort отменяет допущенный, но не отправленный execution.
func (d *Dispatcher) Abort(ctx context.Context, p *Prepared, reason string) {
	if _, err := d.gate.CompleteExecution(context.WithoutCancel(ctx), p.Execution.ID, domain.ExecutionStatusCancelled, reason); err != nil {
		telemetry.WithExecutionID(d.logger, p.Execution.ID).Error("failed to cancel execution", "error", err)
	}
}

func (d *Dispatcher) token(ctx context.Context) (string, error) {
	if d.credentials == nil {
		return "", errors.New("credential provider is not configured")
	}
	token, err := d.credentials.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("get rest credentials: %w", err)
	}
	return token, nil
}

// resolvePlugin ищет плагин workflow по имени.
func resolvePlugin(name string, plugins []domain.PluginDescriptor) (*domain.PluginRef, error) {
	for _, p := range plugins {
		if p.Name == name {
			return &domain.PluginRef{
				Name:           p.Name,
				PackageName:    p.PackageName,
				PackageVersion: p.PackageVersion,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: plugin %q", domain.ErrNotFound, name)
}
