package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpdateRepository хранит deployment updates.
type UpdateRepository interface {
	// Create сохраняет новый update. Возвращает ErrConflict, если для
	// deployment уже есть update в staged/updating.
	Create(ctx context.Context, u *DeploymentUpdate) error

	Get(ctx context.Context, id uuid.UUID) (*DeploymentUpdate, error)
	List(ctx context.Context, filter UpdateFilter) ([]DeploymentUpdate, error)

	// AppendStep атомарно назначает шагу следующий ordering_index и
	// добавляет его, только если update в staged. Иначе ErrInvalidState.
	AppendStep(ctx context.Context, id uuid.UUID, step UpdateStep) (UpdateStep, error)

	// Transition сохраняет update, только если текущее сохранённое
	// состояние равно from (compare-and-set). Иначе возвращает ErrConflict.
	Transition(ctx context.Context, u *DeploymentUpdate, from UpdateState) error
}

// DeploymentRepository хранит deployments (внешняя сущность).
type DeploymentRepository interface {
	Get(ctx context.Context, id string) (*Deployment, error)
	Put(ctx context.Context, d *Deployment) error

	// SetTopology заменяет топологию deployment целиком.
	SetTopology(ctx context.Context, id string, topology Topology, blueprintID string) error
}

// ExecutionRepository читает executions. Запись статусов идёт
// через GateTx, чтобы счётчик выполняющихся оставался согласованным.
type ExecutionRepository interface {
	Get(ctx context.Context, id string) (*Execution, error)
	ListByIDs(ctx context.Context, ids []string) ([]Execution, error)

	// ListRunningCreatedBefore возвращает pending/started executions,
	// созданные раньше before.
	ListRunningCreatedBefore(ctx context.Context, before time.Time, limit int) ([]Execution, error)
}

// GateStore даёт эксклюзивную транзакционную секцию над записью
// maintenance mode и таблицей executions. Все решения о допуске
// executions и переходах maintenance mode выполняются внутри неё.
type GateStore interface {
	WithinLock(ctx context.Context, fn func(ctx context.Context, tx GateTx) error) error
}

// GateTx — операции, доступные внутри секции GateStore.
// Если fn вернула ошибку, изменения не применяются.
type GateTx interface {
	// GetMaintenance возвращает сохранённое состояние или nil, если записи нет.
	GetMaintenance(ctx context.Context) (*MaintenanceState, error)
	PutMaintenance(ctx context.Context, state MaintenanceState) error

	// DeleteMaintenance удаляет запись. Возвращает false, если записи не было.
	DeleteMaintenance(ctx context.Context) (bool, error)

	CountRunningExecutions(ctx context.Context) (int, error)
	CreateExecutions(ctx context.Context, execs []Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, e *Execution) error
}
