package engine

import (
	"fmt"

	"github.com/shaiso/Helmsman/internal/domain"
)

// ValidateTopology выполняет полную валидацию топологии.
//
// Проверяет:
//   - Наличие и уникальность ID узлов
//   - Что связи указывают на существующие узлы (и не на себя)
//   - Отсутствие циклов (делегируется графу)
//   - Непустые имена outputs
func ValidateTopology(t *domain.Topology) error {
	if t == nil {
		return nil
	}

	if _, err := BuildGraph(t); err != nil {
		return err
	}

	for name := range t.Outputs {
		if name == "" {
			return NewValidationError("output", "output has empty name", domain.ErrBadParameters)
		}
	}

	return nil
}

// ValidateStep проверяет, что шаг корректен сам по себе:
// известные операция и тип сущности, непустой и корректно оформленный entity_id.
func ValidateStep(step domain.UpdateStep) error {
	if _, err := domain.ParseStepOperation(string(step.Operation)); err != nil {
		return err
	}
	if _, err := domain.ParseEntityType(string(step.EntityType)); err != nil {
		return err
	}
	if step.EntityID == "" {
		return NewValidationError(step.Key(), "step has empty entity_id", domain.ErrBadParameters)
	}

	switch step.EntityType {
	case domain.EntityRelationship:
		if _, _, ok := ParseRelationshipID(step.EntityID); !ok {
			return NewValidationError(step.Key(),
				fmt.Sprintf("relationship id must look like %q", domain.RelationshipID("source", "target")),
				ErrMalformedEntityID)
		}
	case domain.EntityProperty:
		if _, _, ok := ParsePropertyID(step.EntityID); !ok {
			return NewValidationError(step.Key(),
				fmt.Sprintf("property id must look like %q", domain.PropertyID("node", "key")),
				ErrMalformedEntityID)
		}
	}

	return nil
}
