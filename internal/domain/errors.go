package domain

import "errors"

// Ошибки control plane. Каждая соответствует стабильному коду ошибки API.
var (
	// ErrInvalidState — операция над update в неподходящем состоянии.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict — параллельный commit или повторный stage для того же deployment.
	ErrConflict = errors.New("conflict")

	// ErrNotFound — неизвестный update, deployment, execution или плагин.
	ErrNotFound = errors.New("not found")

	// ErrMaintenanceModeActive — запуск execution запрещён maintenance mode.
	ErrMaintenanceModeActive = errors.New("maintenance mode active")

	// ErrBadParameters — некорректное действие или запрос.
	ErrBadParameters = errors.New("bad parameters")

	// ErrDispatch — не удалось отправить задачу в очередь.
	ErrDispatch = errors.New("dispatch failed")

	// ErrExecutionTimeout — execution не уложился в отведённое время.
	ErrExecutionTimeout = errors.New("execution timeout")

	// ErrExecutionsRunning — finalize вызван, пока executions ещё выполняются.
	ErrExecutionsRunning = errors.New("executions still running")

	// ErrRollback — не удалось восстановить старую топологию.
	// Требует вмешательства оператора.
	ErrRollback = errors.New("rollback failed")
)

// Стабильные коды ошибок.
const (
	KindInvalidState      = "INVALID_STATE"
	KindConflict          = "CONFLICT"
	KindNotFound          = "NOT_FOUND"
	KindMaintenanceActive = "MAINTENANCE_MODE_ACTIVE"
	KindBadParameters     = "BAD_PARAMETERS"
	KindDispatch          = "DISPATCH_ERROR"
	KindExecutionTimeout  = "EXECUTION_TIMEOUT"
	KindExecutionsRunning = "EXECUTIONS_RUNNING"
	KindRollback          = "ROLLBACK_ERROR"
	KindInternal          = "INTERNAL_ERROR"
)

// ErrorKind возвращает стабильный код ошибки.
// Порядок проверок важен: ошибка отката оборачивает исходную причину.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRollback):
		return KindRollback
	case errors.Is(err, ErrExecutionTimeout):
		return KindExecutionTimeout
	case errors.Is(err, ErrMaintenanceModeActive):
		return KindMaintenanceActive
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrBadParameters):
		return KindBadParameters
	case errors.Is(err, ErrExecutionsRunning):
		return KindExecutionsRunning
	case errors.Is(err, ErrDispatch):
		return KindDispatch
	default:
		return KindInternal
	}
}
