package engine

import (
	"fmt"
	"sort"

	"github.com/shaiso/Helmsman/internal/domain"
)

// Node — узел графа зависимостей.
type Node struct {
	// ID — ID узла топологии.
	ID string

	// InDegree — количество узлов, от которых зависит этот узел.
	InDegree int

	// DependsOn — цели связей этого узла.
	DependsOn []*Node

	// Dependents — узлы, связанные с этим узлом.
	Dependents []*Node
}

// Graph — граф зависимостей узлов топологии.
//
// Связь source → target означает, что source зависит от target:
// target должен существовать раньше source и удаляться позже.
type Graph struct {
	// Nodes — все узлы графа (nodeID → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей, отсортированы по ID.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов (зависимости первыми).
	Order []*Node

	position map[string]int
}

// BuildGraph строит граф зависимостей топологии.
// Возвращает ошибку для связей на неизвестные узлы, петель и циклов.
func BuildGraph(t *domain.Topology) (*Graph, error) {
	g := &Graph{
		Nodes: make(map[string]*Node, len(t.Nodes)),
	}

	// Первый проход: создаём все узлы
	for _, n := range t.Nodes {
		if n.ID == "" {
			return nil, NewValidationError("", "node has empty ID", ErrEmptyNodeID)
		}
		if _, exists := g.Nodes[n.ID]; exists {
			return nil, NewValidationError("node:"+n.ID, "duplicate node ID", ErrDuplicateNodeID)
		}
		g.Nodes[n.ID] = &Node{ID: n.ID}
	}

	// Второй проход: связываем узлы
	for _, n := range t.Nodes {
		node := g.Nodes[n.ID]
		for _, rel := range n.Relationships {
			if rel.Target == n.ID {
				return nil, NewValidationError("node:"+n.ID, "node has relationship to itself", ErrSelfDependency)
			}
			target, exists := g.Nodes[rel.Target]
			if !exists {
				return nil, NewValidationError("relationship:"+domain.RelationshipID(n.ID, rel.Target),
					fmt.Sprintf("target %q does not exist", rel.Target), ErrUnknownTarget)
			}
			g.addEdge(target, node)
		}
	}

	g.findRootNodes()

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	g.position = make(map[string]int, len(order))
	for i, node := range order {
		g.position[node.ID] = i
	}

	return g, nil
}

// addEdge добавляет ребро from → to (to зависит от from).
// Повторные связи между одной парой узлов не учитываются дважды.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (g *Graph) findRootNodes() {
	g.RootNodes = make([]*Node, 0)
	for _, node := range g.Nodes {
		if node.InDegree == 0 {
			g.RootNodes = append(g.RootNodes, node)
		}
	}
	sort.Slice(g.RootNodes, func(i, j int) bool {
		return g.RootNodes[i].ID < g.RootNodes[j].ID
	})
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(g.RootNodes))
	copy(queue, g.RootNodes)

	order := make([]*Node, 0, len(g.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Position возвращает позицию узла в топологическом порядке (-1, если узла нет).
func (g *Graph) Position(id string) int {
	if pos, ok := g.position[id]; ok {
		return pos
	}
	return -1
}

// GetNode возвращает узел по ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов в графе.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// Reverse возвращает узлы в обратном топологическом порядке
// (зависимые раньше своих зависимостей).
func (g *Graph) Reverse() []*Node {
	out := make([]*Node, len(g.Order))
	for i, node := range g.Order {
		out[len(g.Order)-1-i] = node
	}
	return out
}
