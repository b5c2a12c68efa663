package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
)

// Deployment update DTOs

// StageUpdateRequest — запрос на создание update.
type StageUpdateRequest struct {
	DeploymentID string           `json:"deployment_id"`
	Blueprint    domain.Blueprint `json:"blueprint"`
}

// AddStepRequest — запрос на добавление шага.
type AddStepRequest struct {
	Operation  string `json:"operation"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// StepResponse — ответ с шагом update.
type StepResponse struct {
	Operation  string `json:"operation"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Index      int    `json:"ordering_index"`
}

// StepFromDomain конвертирует domain.UpdateStep в StepResponse.
func StepFromDomain(s domain.UpdateStep) StepResponse {
	return StepResponse{
		Operation:  string(s.Operation),
		EntityType: string(s.EntityType),
		EntityID:   s.EntityID,
		Index:      s.Index,
	}
}

// UpdateResponse — ответ с deployment update.
type UpdateResponse struct {
	ID                 uuid.UUID       `json:"id"`
	DeploymentID       string          `json:"deployment_id"`
	BlueprintID        string          `json:"blueprint_id,omitempty"`
	State              string          `json:"state"`
	Steps              []StepResponse  `json:"steps"`
	ExecutionIDs       []string        `json:"execution_ids"`
	OldTopology        domain.Topology `json:"old_topology"`
	NewTopology        domain.Topology `json:"new_topology"`
	Error              string          `json:"error,omitempty"`
	RollbackIncomplete bool            `json:"rollback_incomplete"`
	CreatedAt          time.Time       `json:"created_at"`
	CommittedAt        *time.Time      `json:"committed_at,omitempty"`
	FinishedAt         *time.Time      `json:"finished_at,omitempty"`
}

// UpdateFromDomain конвертирует domain.DeploymentUpdate в UpdateResponse.
func UpdateFromDomain(u *domain.DeploymentUpdate) UpdateResponse {
	steps := make([]StepResponse, len(u.Steps))
	for i, s := range u.Steps {
		steps[i] = StepFromDomain(s)
	}

	ids := u.ExecutionIDs
	if ids == nil {
		ids = []string{}
	}

	return UpdateResponse{
		ID:                 u.ID,
		DeploymentID:       u.DeploymentID,
		BlueprintID:        u.BlueprintID,
		State:              string(u.State),
		Steps:              steps,
		ExecutionIDs:       ids,
		OldTopology:        u.OldTopology,
		NewTopology:        u.NewTopology,
		Error:              u.Error,
		RollbackIncomplete: u.RollbackIncomplete,
		CreatedAt:          u.CreatedAt,
		CommittedAt:        u.CommittedAt,
		FinishedAt:         u.FinishedAt,
	}
}

// Maintenance DTOs

// MaintenanceResponse — ответ с состоянием maintenance mode.
type MaintenanceResponse struct {
	Status                string     `json:"status"`
	ActivationRequestedAt *time.Time `json:"activation_requested_at,omitempty"`
	RequestedBy           string     `json:"requested_by,omitempty"`
	RemainingExecutions   int        `json:"remaining_executions"`
}

// MaintenanceFromDomain конвертирует domain.MaintenanceState в MaintenanceResponse.
func MaintenanceFromDomain(s domain.MaintenanceState) MaintenanceResponse {
	return MaintenanceResponse{
		Status:                string(s.Status),
		ActivationRequestedAt: s.ActivationRequestedAt,
		RequestedBy:           s.RequestedBy,
		RemainingExecutions:   s.RemainingExecutions,
	}
}

// Execution DTOs

// StartExecutionRequest — запрос на запуск workflow.
//
// System=true запускает системный workflow: DeploymentID необязателен,
// TaskMapping задаёт задачу worker-а.
type StartExecutionRequest struct {
	WorkflowID        string         `json:"workflow_id"`
	DeploymentID      string         `json:"deployment_id,omitempty"`
	ExecutionID       string         `json:"execution_id,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	BypassMaintenance bool           `json:"bypass_maintenance,omitempty"`
	System            bool           `json:"is_system_workflow,omitempty"`
	TaskMapping       string         `json:"task_mapping,omitempty"`
}

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID                string         `json:"id"`
	WorkflowID        string         `json:"workflow_id"`
	DeploymentID      string         `json:"deployment_id,omitempty"`
	BlueprintID       string         `json:"blueprint_id,omitempty"`
	UpdateID          *uuid.UUID     `json:"update_id,omitempty"`
	Status            string         `json:"status"`
	IsSystem          bool           `json:"is_system_workflow"`
	BypassMaintenance bool           `json:"bypass_maintenance"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(e *domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:                e.ID,
		WorkflowID:        e.WorkflowID,
		DeploymentID:      e.DeploymentID,
		BlueprintID:       e.BlueprintID,
		UpdateID:          e.UpdateID,
		Status:            string(e.Status),
		IsSystem:          e.IsSystem,
		BypassMaintenance: e.BypassMaintenance,
		Parameters:        e.Parameters,
		Error:             e.Error,
		CreatedAt:         e.CreatedAt,
		EndedAt:           e.EndedAt,
	}
}
