package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// UpdateService — операции над deployment updates.
type UpdateService interface {
	Stage(ctx context.Context, deploymentID string, blueprint domain.Blueprint) (*domain.DeploymentUpdate, error)
	AddStep(ctx context.Context, id uuid.UUID, op domain.StepOperation, et domain.EntityType, entityID string) (domain.UpdateStep, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error)
	List(ctx context.Context, filter domain.UpdateFilter) ([]domain.DeploymentUpdate, error)
	Commit(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error)
	Finalize(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error)
	Discard(ctx context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error)
}

// MaintenanceService — maintenance mode.
type MaintenanceService interface {
	CurrentState(ctx context.Context) (domain.MaintenanceState, error)
	Apply(ctx context.Context, action, requestedBy string) (domain.MaintenanceResult, error)
}

// ExecutionDispatcher — ручной запуск workflows.
type ExecutionDispatcher interface {
	DispatchWorkflow(ctx context.Context, req dispatch.WorkflowRequest) (dispatch.Handle, error)
	DispatchSystemWorkflow(ctx context.Context, req dispatch.SystemWorkflowRequest) (dispatch.Handle, error)
}

// Broker — состояние соединения с брокером для /healthz.
type Broker interface {
	IsConnected() bool
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	updates     UpdateService
	maintenance MaintenanceService
	dispatcher  ExecutionDispatcher
	deployments domain.DeploymentRepository
	executions  domain.ExecutionRepository
	broker      Broker
	token       string
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Updates     UpdateService
	Maintenance MaintenanceService
	Dispatcher  ExecutionDispatcher
	Deployments domain.DeploymentRepository
	Executions  domain.ExecutionRepository

	// Broker опционален. Без него /healthz не проверяет брокер.
	Broker Broker

	// Token — bearer token для /api. Пустой отключает проверку.
	Token string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		updates:     cfg.Updates,
		maintenance: cfg.Maintenance,
		dispatcher:  cfg.Dispatcher,
		deployments: cfg.Deployments,
		executions:  cfg.Executions,
		broker:      cfg.Broker,
		token:       cfg.Token,
		logger:      logger,
	}
}

// log возвращает логгер запроса, добавленный Logging middleware.
func (h *Handler) log(r *http.Request) *slog.Logger {
	return telemetry.FromContext(r.Context())
}
