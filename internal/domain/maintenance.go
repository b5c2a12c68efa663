package domain

import "time"

// MaintenanceState — состояние maintenance mode.
//
// Отсутствие сохранённой записи означает DEACTIVATED.
// RemainingExecutions имеет смысл только в ACTIVATING и не возрастает.
type MaintenanceState struct {
	Status                MaintenanceStatus `json:"status"`
	ActivationRequestedAt *time.Time        `json:"activation_requested_at,omitempty"`
	RequestedBy           string            `json:"requested_by,omitempty"`
	RemainingExecutions   int               `json:"remaining_executions"`
}

// DeactivatedState возвращает состояние выключенного maintenance mode.
func DeactivatedState() MaintenanceState {
	return MaintenanceState{Status: MaintenanceDeactivated}
}

// BlocksExecutions возвращает true, если новые executions запрещены.
func (s MaintenanceState) BlocksExecutions() bool {
	return s.Status == MaintenanceActivating || s.Status == MaintenanceActivated
}

// MaintenanceResult — результат действия над maintenance mode.
// Changed=false означает, что действие ничего не изменило (повтор).
type MaintenanceResult struct {
	State   MaintenanceState `json:"state"`
	Changed bool             `json:"changed"`
}
