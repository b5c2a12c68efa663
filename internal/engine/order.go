package engine

import (
	"fmt"

	"github.com/shaiso/Helmsman/internal/domain"
)

// ValidateOrder проверяет, что шаги идут в порядке, согласованном с зависимостями.
//
// Зависимости шага:
//   - relationship a->b зависит от node:a и node:b
//   - property n.k зависит от node:n
//   - node n зависит от узлов, на которые ссылаются его связи
//     (в любой из переданных топологий)
//
// Правила:
//   - ordering_index строго возрастает
//   - add/modify не идёт после remove своей зависимости
//   - remove не идёт после remove своей зависимости (зависимые удаляются первыми)
//   - add не идёт раньше add своей зависимости
func ValidateOrder(steps []domain.UpdateStep, topologies ...*domain.Topology) error {
	for i, s := range steps {
		if err := ValidateStep(s); err != nil {
			return err
		}
		if i > 0 && s.Index <= steps[i-1].Index {
			return NewValidationError(s.Key(),
				fmt.Sprintf("ordering_index %d does not follow %d", s.Index, steps[i-1].Index),
				ErrStepOrder)
		}
	}

	targets := relationshipTargets(topologies)

	firstAdd := make(map[string]int)
	for i, s := range steps {
		if s.Operation == domain.StepAdd {
			if _, ok := firstAdd[s.Key()]; !ok {
				firstAdd[s.Key()] = i
			}
		}
	}

	// removed — сущности, удалённые раньше и не добавленные повторно
	removed := make(map[string]int)

	for i, s := range steps {
		for _, dep := range stepDependencies(s, targets) {
			if at, ok := removed[dep]; ok {
				return NewValidationError(s.Key(),
					fmt.Sprintf("%s of %s follows removal of its dependency %s (step %d)",
						s.Operation, s.Key(), dep, steps[at].Index),
					ErrStepOrder)
			}
			if s.Operation == domain.StepAdd {
				if at, ok := firstAdd[dep]; ok && at > i {
					return NewValidationError(s.Key(),
						fmt.Sprintf("add of %s precedes add of its dependency %s (step %d)",
							s.Key(), dep, steps[at].Index),
						ErrStepOrder)
				}
			}
		}

		switch s.Operation {
		case domain.StepRemove:
			removed[s.Key()] = i
		case domain.StepAdd:
			delete(removed, s.Key())
		}
	}

	return nil
}

// relationshipTargets собирает цели связей каждого узла по всем топологиям.
func relationshipTargets(topologies []*domain.Topology) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, t := range topologies {
		if t == nil {
			continue
		}
		for _, n := range t.Nodes {
			for _, rel := range n.Relationships {
				if out[n.ID] == nil {
					out[n.ID] = make(map[string]struct{})
				}
				out[n.ID][rel.Target] = struct{}{}
			}
		}
	}
	return out
}

func stepDependencies(s domain.UpdateStep, targets map[string]map[string]struct{}) []string {
	nodeKey := func(id string) string {
		return string(domain.EntityNode) + ":" + id
	}

	switch s.EntityType {
	case domain.EntityRelationship:
		source, target, _ := ParseRelationshipID(s.EntityID)
		return []string{nodeKey(source), nodeKey(target)}
	case domain.EntityProperty:
		nodeID, _, _ := ParsePropertyID(s.EntityID)
		return []string{nodeKey(nodeID)}
	case domain.EntityNode:
		deps := make([]string, 0, len(targets[s.EntityID]))
		for target := range targets[s.EntityID] {
			deps = append(deps, nodeKey(target))
		}
		return deps
	default:
		return nil
	}
}
