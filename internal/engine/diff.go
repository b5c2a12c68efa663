package engine

import (
	"reflect"
	"sort"
	"strings"

	"github.com/shaiso/Helmsman/internal/domain"
)

// ParseRelationshipID разбирает entity_id связи "source->target".
func ParseRelationshipID(id string) (source, target string, ok bool) {
	source, target, ok = strings.Cut(id, "->")
	if !ok || source == "" || target == "" {
		return "", "", false
	}
	return source, target, true
}

// ParsePropertyID разбирает entity_id свойства "node.key".
// Ключ может содержать точки, ID узла — нет.
func ParsePropertyID(id string) (nodeID, key string, ok bool) {
	nodeID, key, ok = strings.Cut(id, ".")
	if !ok || nodeID == "" || key == "" {
		return "", "", false
	}
	return nodeID, key, true
}

// Diff сравнивает старую и новую топологию и возвращает упорядоченные шаги.
//
// Порядок:
//  1. add: узлы в топологическом порядке новой топологии (каждый со своими связями), затем outputs
//  2. modify: узлы, связи, outputs
//  3. remove: outputs, связи, затем узлы в обратном порядке старой топологии
//
// Связи удалённого узла отдельными шагами не удаляются: их убирает удаление узла.
func Diff(old, next *domain.Topology) ([]domain.UpdateStep, error) {
	oldGraph, err := BuildGraph(old)
	if err != nil {
		return nil, err
	}
	newGraph, err := BuildGraph(next)
	if err != nil {
		return nil, err
	}

	var adds, modifies, removes []domain.UpdateStep
	step := func(list *[]domain.UpdateStep, op domain.StepOperation, et domain.EntityType, id string) {
		*list = append(*list, domain.UpdateStep{Operation: op, EntityType: et, EntityID: id})
	}

	// Узлы и связи новой топологии
	for _, gn := range newGraph.Order {
		newNode, _ := next.Node(gn.ID)
		oldNode, existed := old.Node(gn.ID)

		switch {
		case !existed:
			step(&adds, domain.StepAdd, domain.EntityNode, gn.ID)
		case nodeChanged(oldNode, newNode):
			step(&modifies, domain.StepModify, domain.EntityNode, gn.ID)
		}

		for _, rel := range sortedRelationships(newNode) {
			id := domain.RelationshipID(gn.ID, rel.Target)
			if !existed {
				step(&adds, domain.StepAdd, domain.EntityRelationship, id)
				continue
			}
			oldRel, ok := oldNode.Relationship(rel.Target)
			switch {
			case !ok:
				step(&adds, domain.StepAdd, domain.EntityRelationship, id)
			case relationshipChanged(oldRel, &rel):
				step(&modifies, domain.StepModify, domain.EntityRelationship, id)
			}
		}
	}

	// Outputs
	for _, name := range sortedOutputNames(next.Outputs) {
		oldOut, ok := old.Outputs[name]
		switch {
		case !ok:
			step(&adds, domain.StepAdd, domain.EntityOutput, name)
		case !reflect.DeepEqual(oldOut, next.Outputs[name]):
			step(&modifies, domain.StepModify, domain.EntityOutput, name)
		}
	}
	for _, name := range sortedOutputNames(old.Outputs) {
		if _, ok := next.Outputs[name]; !ok {
			step(&removes, domain.StepRemove, domain.EntityOutput, name)
		}
	}

	// Связи, исчезнувшие у сохранившихся узлов. Зависимые раньше зависимостей.
	reverse := oldGraph.Reverse()
	for _, gn := range reverse {
		newNode, kept := next.Node(gn.ID)
		if !kept {
			continue
		}
		oldNode, _ := old.Node(gn.ID)
		for _, rel := range sortedRelationships(oldNode) {
			if _, ok := newNode.Relationship(rel.Target); !ok {
				step(&removes, domain.StepRemove, domain.EntityRelationship, domain.RelationshipID(gn.ID, rel.Target))
			}
		}
	}

	// Удалённые узлы
	for _, gn := range reverse {
		if _, kept := next.Node(gn.ID); !kept {
			step(&removes, domain.StepRemove, domain.EntityNode, gn.ID)
		}
	}

	steps := make([]domain.UpdateStep, 0, len(adds)+len(modifies)+len(removes))
	steps = append(steps, adds...)
	steps = append(steps, modifies...)
	steps = append(steps, removes...)
	for i := range steps {
		steps[i].Index = i
	}

	return steps, nil
}

func nodeChanged(a, b *domain.Node) bool {
	if a.Type != b.Type {
		return true
	}
	return !propertiesEqual(a.Properties, b.Properties)
}

func relationshipChanged(a, b *domain.Relationship) bool {
	if a.Type != b.Type {
		return true
	}
	return !propertiesEqual(a.Properties, b.Properties)
}

// propertiesEqual считает nil и пустую map равными.
func propertiesEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sortedRelationships(n *domain.Node) []domain.Relationship {
	rels := make([]domain.Relationship, len(n.Relationships))
	copy(rels, n.Relationships)
	sort.Slice(rels, func(i, j int) bool {
		return rels[i].Target < rels[j].Target
	})
	return rels
}

func sortedOutputNames(outputs map[string]domain.Output) []string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
