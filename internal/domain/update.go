package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepOperation — тип изменения в UpdateStep.
type StepOperation string

const (
	StepAdd    StepOperation = "add"
	StepRemove StepOperation = "remove"
	StepModify StepOperation = "modify"
)

// ParseStepOperation парсит строку в StepOperation.
func ParseStepOperation(s string) (StepOperation, error) {
	switch op := StepOperation(s); op {
	case StepAdd, StepRemove, StepModify:
		return op, nil
	default:
		return "", fmt.Errorf("%w: unknown operation %q", ErrBadParameters, s)
	}
}

// EntityType — тип сущности топологии, которую меняет шаг.
type EntityType string

const (
	EntityNode         EntityType = "node"
	EntityRelationship EntityType = "relationship"
	EntityProperty     EntityType = "property"
	EntityOutput       EntityType = "output"
	EntityWorkflow     EntityType = "workflow"
	EntityOperation    EntityType = "operation"
)

// ParseEntityType парсит строку в EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch et := EntityType(s); et {
	case EntityNode, EntityRelationship, EntityProperty,
		EntityOutput, EntityWorkflow, EntityOperation:
		return et, nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrBadParameters, s)
	}
}

// UpdateStep — одно атомарное изменение топологии.
type UpdateStep struct {
	Operation  StepOperation `json:"operation" yaml:"operation"`
	EntityType EntityType    `json:"entity_type" yaml:"entity_type"`
	EntityID   string        `json:"entity_id" yaml:"entity_id"`

	// Index — порядковый номер шага, строго возрастает внутри update.
	Index int `json:"ordering_index" yaml:"ordering_index"`
}

// Key возвращает ключ сущности "<entity_type>:<entity_id>".
func (s UpdateStep) Key() string {
	return string(s.EntityType) + ":" + s.EntityID
}

// Blueprint — разобранный blueprint, который предлагается применить.
// Разбор DSL выполняется снаружи, сюда приходит готовая топология.
type Blueprint struct {
	ID       string   `json:"id" yaml:"id"`
	Topology Topology `json:"topology" yaml:"topology"`

	// Steps — явный список шагов. Если пуст, шаги вычисляются диффом.
	Steps []UpdateStep `json:"steps,omitempty" yaml:"steps,omitempty"`
}

// DeploymentUpdate — одно предложенное изменение топологии deployment.
//
// Жизненный цикл:
//
//	staged → updating → committed
//	                  ↘ failed
//	staged → discarded
//
// Update никогда не удаляется и хранится как история.
type DeploymentUpdate struct {
	// ID — уникальный идентификатор update.
	ID uuid.UUID `json:"id"`

	// DeploymentID — deployment, к которому относится update.
	DeploymentID string `json:"deployment_id"`

	// BlueprintID — blueprint, из которого получена новая топология.
	BlueprintID string `json:"blueprint_id,omitempty"`

	// State — текущее состояние.
	State UpdateState `json:"state"`

	// OldTopology — снимок топологии на момент stage. Авторитетен при откате.
	OldTopology Topology `json:"old_topology"`

	// NewTopology — предлагаемая топология.
	NewTopology Topology `json:"new_topology"`

	// Steps — упорядоченные шаги. Неизменны после выхода из staged.
	Steps []UpdateStep `json:"steps"`

	// ExecutionIDs — executions, запущенные при commit.
	ExecutionIDs []string `json:"execution_ids,omitempty"`

	// Error — причина перехода в failed.
	Error string `json:"error,omitempty"`

	// RollbackIncomplete — откат к OldTopology не удался,
	// требуется вмешательство оператора.
	RollbackIncomplete bool `json:"rollback_incomplete,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CommittedAt *time.Time `json:"committed_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// AppendStep добавляет шаг со следующим ordering_index.
func (u *DeploymentUpdate) AppendStep(op StepOperation, et EntityType, entityID string) (UpdateStep, error) {
	if u.State != UpdateStateStaged {
		return UpdateStep{}, fmt.Errorf("%w: update %s is %s", ErrInvalidState, u.ID, u.State)
	}
	step := UpdateStep{
		Operation:  op,
		EntityType: et,
		EntityID:   entityID,
		Index:      u.NextIndex(),
	}
	u.Steps = append(u.Steps, step)
	return step, nil
}

// NextIndex возвращает ordering_index для следующего шага.
func (u *DeploymentUpdate) NextIndex() int {
	if len(u.Steps) == 0 {
		return 0
	}
	return u.Steps[len(u.Steps)-1].Index + 1
}

// MarkUpdating переводит update в updating.
func (u *DeploymentUpdate) MarkUpdating(executionIDs []string, now time.Time) {
	u.State = UpdateStateUpdating
	u.ExecutionIDs = executionIDs
	u.CommittedAt = &now
}

// MarkCommitted переводит update в committed.
func (u *DeploymentUpdate) MarkCommitted(now time.Time) {
	u.State = UpdateStateCommitted
	u.FinishedAt = &now
}

// MarkFailed переводит update в failed с ошибкой.
func (u *DeploymentUpdate) MarkFailed(err string, now time.Time) {
	u.State = UpdateStateFailed
	u.Error = err
	u.FinishedAt = &now
}

// MarkDiscarded переводит update в discarded.
func (u *DeploymentUpdate) MarkDiscarded(now time.Time) {
	u.State = UpdateStateDiscarded
	u.FinishedAt = &now
}

// UpdateFilter — параметры выборки updates.
type UpdateFilter struct {
	DeploymentID string
	State        UpdateState
	Limit        int
	Offset       int

	// Descending — сортировка по created_at по убыванию.
	Descending bool
}

// Clone возвращает глубокую копию update.
func (u *DeploymentUpdate) Clone() *DeploymentUpdate {
	out := *u
	out.OldTopology = u.OldTopology.Clone()
	out.NewTopology = u.NewTopology.Clone()
	if u.Steps != nil {
		out.Steps = append([]UpdateStep(nil), u.Steps...)
	}
	if u.ExecutionIDs != nil {
		out.ExecutionIDs = append([]string(nil), u.ExecutionIDs...)
	}
	if u.CommittedAt != nil {
		t := *u.CommittedAt
		out.CommittedAt = &t
	}
	if u.FinishedAt != nil {
		t := *u.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
