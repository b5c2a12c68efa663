package domain

// UpdateState — состояние deployment update.
//
// Жизненный цикл:
//
//	STAGED → UPDATING → COMMITTED
//	                  ↘ FAILED
//	(или)  → DISCARDED (только из STAGED)
type UpdateState string

const (
	// UpdateStateStaged — изменения подготовлены, шаги можно дополнять.
	UpdateStateStaged UpdateState = "staged"

	// UpdateStateUpdating — commit выполнен, workflows запущены.
	UpdateStateUpdating UpdateState = "updating"

	// UpdateStateCommitted — новая топология стала канонической.
	UpdateStateCommitted UpdateState = "committed"

	// UpdateStateFailed — выполнение упало, топология откатана.
	UpdateStateFailed UpdateState = "failed"

	// UpdateStateDiscarded — staged update отброшен оператором без commit.
	UpdateStateDiscarded UpdateState = "discarded"
)

// IsActive возвращает true, если update блокирует deployment
// (на один deployment допускается не больше одного активного update).
func (s UpdateState) IsActive() bool {
	return s == UpdateStateStaged || s == UpdateStateUpdating
}

// IsTerminal возвращает true, если статус финальный.
func (s UpdateState) IsTerminal() bool {
	switch s {
	case UpdateStateCommitted, UpdateStateFailed, UpdateStateDiscarded:
		return true
	default:
		return false
	}
}

// ParseUpdateState парсит строку в UpdateState.
// Возвращает false для неизвестного значения.
func ParseUpdateState(s string) (UpdateState, bool) {
	switch st := UpdateState(s); st {
	case UpdateStateStaged, UpdateStateUpdating, UpdateStateCommitted,
		UpdateStateFailed, UpdateStateDiscarded:
		return st, true
	default:
		return "", false
	}
}

// ExecutionStatus — статус выполнения workflow.
//
// Жизненный цикл:
//
//	PENDING → STARTED → TERMINATED
//	                  ↘ FAILED | CANCELLED | TIMED_OUT
type ExecutionStatus string

const (
	// ExecutionStatusPending — execution допущен и отправлен в очередь.
	ExecutionStatusPending ExecutionStatus = "pending"

	// ExecutionStatusStarted — worker начал выполнение.
	ExecutionStatusStarted ExecutionStatus = "started"

	// ExecutionStatusTerminated — workflow успешно завершён.
	ExecutionStatusTerminated ExecutionStatus = "terminated"

	// ExecutionStatusFailed — workflow завершился с ошибкой.
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusCancelled — execution отменён до завершения.
	ExecutionStatusCancelled ExecutionStatus = "cancelled"

	// ExecutionStatusTimedOut — execution не завершился за отведённое время.
	ExecutionStatusTimedOut ExecutionStatus = "timed_out"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusTerminated, ExecutionStatusFailed,
		ExecutionStatusCancelled, ExecutionStatusTimedOut:
		return true
	default:
		return false
	}
}

// IsRunning возвращает true для executions, которые учитываются
// как выполняющиеся (блокируют активацию maintenance mode).
func (s ExecutionStatus) IsRunning() bool {
	return s == ExecutionStatusPending || s == ExecutionStatusStarted
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
func ParseExecutionStatus(s string) (ExecutionStatus, bool) {
	switch st := ExecutionStatus(s); st {
	case ExecutionStatusPending, ExecutionStatusStarted, ExecutionStatusTerminated,
		ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusTimedOut:
		return st, true
	default:
		return "", false
	}
}

// MaintenanceStatus — статус maintenance mode.
//
// Переходы:
//
//	DEACTIVATED → ACTIVATING → ACTIVATED
//	(любой)     → DEACTIVATED
type MaintenanceStatus string

const (
	// MaintenanceDeactivated — executions запускаются свободно.
	MaintenanceDeactivated MaintenanceStatus = "deactivated"

	// MaintenanceActivating — новые executions запрещены, ждём завершения текущих.
	MaintenanceActivating MaintenanceStatus = "activating"

	// MaintenanceActivated — новые executions запрещены, текущих нет.
	MaintenanceActivated MaintenanceStatus = "activated"
)
