package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск workflow.
//
// Execution создаётся в момент допуска (maintenance gate) со статусом
// PENDING и считается выполняющимся до получения финального статуса от worker.
type Execution struct {
	// ID — идентификатор execution, он же correlation key в очереди.
	ID string `json:"id"`

	// WorkflowID — имя workflow (install, update, ...).
	WorkflowID string `json:"workflow_id"`

	// DeploymentID — пусто для системных workflows уровня кластера.
	DeploymentID string `json:"deployment_id,omitempty"`

	BlueprintID string `json:"blueprint_id,omitempty"`

	// UpdateID — deployment update, который запустил execution.
	UpdateID *uuid.UUID `json:"update_id,omitempty"`

	Status ExecutionStatus `json:"status"`

	// IsSystem — системный workflow (не привязан к blueprint).
	IsSystem bool `json:"is_system_workflow"`

	BypassMaintenance bool `json:"bypass_maintenance"`

	Parameters map[string]any `json:"parameters,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Finish переводит execution в финальный статус.
func (e *Execution) Finish(status ExecutionStatus, errMsg string) {
	now := time.Now()
	e.Status = status
	e.Error = errMsg
	e.EndedAt = &now
}

// PluginRef — плагин, в котором реализована операция workflow.
type PluginRef struct {
	Name           string `json:"name"`
	PackageName    string `json:"package_name,omitempty"`
	PackageVersion string `json:"package_version,omitempty"`
}

// ExecutionContext — контекст, который получает удалённый worker.
//
// Создаётся dispatcher-ом на каждый вызов и после отправки
// принадлежит worker-у; control plane ссылок на него не хранит.
type ExecutionContext struct {
	Type              string     `json:"type"`
	ExecutionID       string     `json:"execution_id"`
	TaskID            string     `json:"task_id"`
	WorkflowID        string     `json:"workflow_id"`
	TaskName          string     `json:"task_name"`
	TaskTarget        string     `json:"task_target"`
	BlueprintID       string     `json:"blueprint_id,omitempty"`
	DeploymentID      string     `json:"deployment_id,omitempty"`
	Plugin            *PluginRef `json:"plugin,omitempty"`
	RestToken         string     `json:"rest_token"`
	BypassMaintenance bool       `json:"bypass_maintenance"`
}

// TaskMessage — сообщение в очередь управления.
type TaskMessage struct {
	// ExecutionID — correlation key.
	ExecutionID string `json:"execution_id"`

	// Queue — логическая очередь назначения.
	Queue string `json:"queue"`

	Context ExecutionContext `json:"context"`

	// Parameters — непрозрачные параметры execution.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Clone возвращает копию execution.
func (e *Execution) Clone() *Execution {
	out := *e
	out.Parameters = cloneMap(e.Parameters)
	if e.UpdateID != nil {
		id := *e.UpdateID
		out.UpdateID = &id
	}
	if e.EndedAt != nil {
		t := *e.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// ExecutionReport — отчёт worker о ходе execution.
// Status: started или один из финальных статусов.
type ExecutionReport struct {
	ExecutionID string          `json:"execution_id"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
}
