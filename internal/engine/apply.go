package engine

import (
	"fmt"

	"github.com/shaiso/Helmsman/internal/domain"
)

// ApplySteps применяет шаги к копии текущей топологии и возвращает результат.
//
// Значения добавляемых и изменяемых сущностей берутся из next.
// Исходные топологии не меняются. Результат проходит ValidateTopology.
func ApplySteps(current, next domain.Topology, steps []domain.UpdateStep) (domain.Topology, error) {
	out := current.Clone()

	for _, s := range steps {
		if err := ValidateStep(s); err != nil {
			return domain.Topology{}, err
		}

		var err error
		switch s.EntityType {
		case domain.EntityNode:
			err = applyNode(&out, &next, s)
		case domain.EntityRelationship:
			err = applyRelationship(&out, &next, s)
		case domain.EntityProperty:
			err = applyProperty(&out, &next, s)
		case domain.EntityOutput:
			err = applyOutput(&out, &next, s)
		case domain.EntityWorkflow, domain.EntityOperation:
			// Не меняют граф: workflows и операции живут в blueprint.
		}
		if err != nil {
			return domain.Topology{}, err
		}
	}

	if err := ValidateTopology(&out); err != nil {
		return domain.Topology{}, err
	}

	return out, nil
}

func unknownEntity(s domain.UpdateStep, where string) error {
	return NewValidationError(s.Key(), fmt.Sprintf("%s not found in %s topology", s.Key(), where), ErrUnknownEntity)
}

func applyNode(out, next *domain.Topology, s domain.UpdateStep) error {
	switch s.Operation {
	case domain.StepAdd:
		src, ok := next.Node(s.EntityID)
		if !ok {
			return unknownEntity(s, "new")
		}
		if _, exists := out.Node(s.EntityID); exists {
			return NewValidationError(s.Key(), "node already exists", ErrDuplicateNodeID)
		}
		// Связи добавляются отдельными шагами.
		node := src.Clone()
		node.Relationships = nil
		out.Nodes = append(out.Nodes, node)

	case domain.StepModify:
		src, ok := next.Node(s.EntityID)
		if !ok {
			return unknownEntity(s, "new")
		}
		dst, ok := out.Node(s.EntityID)
		if !ok {
			return unknownEntity(s, "current")
		}
		clone := src.Clone()
		dst.Type = clone.Type
		dst.Properties = clone.Properties

	case domain.StepRemove:
		if _, ok := out.Node(s.EntityID); !ok {
			return unknownEntity(s, "current")
		}
		nodes := out.Nodes[:0]
		for _, n := range out.Nodes {
			if n.ID == s.EntityID {
				continue
			}
			n.Relationships = withoutTarget(n.Relationships, s.EntityID)
			nodes = append(nodes, n)
		}
		out.Nodes = nodes
	}
	return nil
}

func withoutTarget(rels []domain.Relationship, target string) []domain.Relationship {
	if len(rels) == 0 {
		return rels
	}
	kept := make([]domain.Relationship, 0, len(rels))
	for _, r := range rels {
		if r.Target != target {
			kept = append(kept, r)
		}
	}
	return kept
}

func applyRelationship(out, next *domain.Topology, s domain.UpdateStep) error {
	source, target, _ := ParseRelationshipID(s.EntityID)

	dst, ok := out.Node(source)
	if !ok {
		return NewValidationError(s.Key(), fmt.Sprintf("source node %q not found", source), ErrUnknownEntity)
	}

	switch s.Operation {
	case domain.StepAdd, domain.StepModify:
		srcNode, ok := next.Node(source)
		if !ok {
			return unknownEntity(s, "new")
		}
		rel, ok := srcNode.Relationship(target)
		if !ok {
			return unknownEntity(s, "new")
		}
		clone := srcNode.Clone()
		var copied domain.Relationship
		for _, r := range clone.Relationships {
			if r.Target == rel.Target {
				copied = r
				break
			}
		}
		if existing, ok := dst.Relationship(target); ok {
			*existing = copied
		} else {
			dst.Relationships = append(dst.Relationships, copied)
		}

	case domain.StepRemove:
		if _, ok := dst.Relationship(target); !ok {
			return unknownEntity(s, "current")
		}
		dst.Relationships = withoutTarget(dst.Relationships, target)
	}
	return nil
}

func applyProperty(out, next *domain.Topology, s domain.UpdateStep) error {
	nodeID, key, _ := ParsePropertyID(s.EntityID)

	dst, ok := out.Node(nodeID)
	if !ok {
		return NewValidationError(s.Key(), fmt.Sprintf("node %q not found", nodeID), ErrUnknownEntity)
	}

	switch s.Operation {
	case domain.StepAdd, domain.StepModify:
		srcNode, ok := next.Node(nodeID)
		if !ok {
			return unknownEntity(s, "new")
		}
		clone := srcNode.Clone()
		value, ok := clone.Properties[key]
		if !ok {
			return unknownEntity(s, "new")
		}
		if dst.Properties == nil {
			dst.Properties = make(map[string]any)
		}
		dst.Properties[key] = value

	case domain.StepRemove:
		if _, ok := dst.Properties[key]; !ok {
			return unknownEntity(s, "current")
		}
		delete(dst.Properties, key)
	}
	return nil
}

func applyOutput(out, next *domain.Topology, s domain.UpdateStep) error {
	switch s.Operation {
	case domain.StepAdd, domain.StepModify:
		src, ok := next.Outputs[s.EntityID]
		if !ok {
			return unknownEntity(s, "new")
		}
		if out.Outputs == nil {
			out.Outputs = make(map[string]domain.Output)
		}
		// Глубокая копия через Clone топологии с единственным output.
		single := domain.Topology{Outputs: map[string]domain.Output{s.EntityID: src}}.Clone()
		out.Outputs[s.EntityID] = single.Outputs[s.EntityID]

	case domain.StepRemove:
		if _, ok := out.Outputs[s.EntityID]; !ok {
			return unknownEntity(s, "current")
		}
		delete(out.Outputs, s.EntityID)
	}
	return nil
}
