package engine

import (
	"fmt"

	"github.com/shaiso/Helmsman/internal/domain"
)

// Ошибки валидации топологии и шагов.
// Все они оборачивают domain.ErrBadParameters.
var (
	// ErrEmptyNodeID — узел без ID.
	ErrEmptyNodeID = fmt.Errorf("%w: node has empty ID", domain.ErrBadParameters)

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = fmt.Errorf("%w: duplicate node ID", domain.ErrBadParameters)

	// ErrUnknownTarget — связь указывает на несуществующий узел.
	ErrUnknownTarget = fmt.Errorf("%w: relationship targets unknown node", domain.ErrBadParameters)

	// ErrSelfDependency — узел связан сам с собой.
	ErrSelfDependency = fmt.Errorf("%w: node depends on itself", domain.ErrBadParameters)

	// ErrCyclicDependency — обнаружен цикл в связях.
	ErrCyclicDependency = fmt.Errorf("%w: cyclic dependency detected", domain.ErrBadParameters)

	// ErrUnknownEntity — шаг ссылается на сущность, которой нет в топологии.
	ErrUnknownEntity = fmt.Errorf("%w: unknown entity", domain.ErrBadParameters)

	// ErrMalformedEntityID — entity_id не соответствует формату типа сущности.
	ErrMalformedEntityID = fmt.Errorf("%w: malformed entity id", domain.ErrBadParameters)

	// ErrStepOrder — порядок шагов нарушает зависимости.
	ErrStepOrder = fmt.Errorf("%w: step order violates dependencies", domain.ErrBadParameters)
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Entity  string // сущность, где произошла ошибка
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Entity != "" {
		return e.Entity + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(entity, message string, err error) *ValidationError {
	return &ValidationError{
		Entity:  entity,
		Message: message,
		Err:     err,
	}
}
