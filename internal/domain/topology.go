package domain

import "sort"

// Topology — граф узлов, связей и outputs, описывающий желаемое
// состояние deployment.
type Topology struct {
	// Nodes — узлы топологии. ID узлов уникальны.
	Nodes []Node `json:"nodes" yaml:"nodes"`

	// Outputs — именованные выходные значения deployment.
	Outputs map[string]Output `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Node — узел топологии.
type Node struct {
	ID            string         `json:"id" yaml:"id"`
	Type          string         `json:"type,omitempty" yaml:"type,omitempty"`
	Properties    map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Relationship — направленная связь узла с другим узлом.
// Узел-источник зависит от Target.
type Relationship struct {
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Target     string         `json:"target" yaml:"target"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Output — выходное значение deployment.
type Output struct {
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Value       any    `json:"value" yaml:"value"`
}

// RelationshipID возвращает entity_id связи source → target.
func RelationshipID(source, target string) string {
	return source + "->" + target
}

// PropertyID возвращает entity_id свойства узла.
func PropertyID(nodeID, key string) string {
	return nodeID + "." + key
}

// Node возвращает узел по ID.
func (t *Topology) Node(id string) (*Node, bool) {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i], true
		}
	}
	return nil, false
}

// NodeIDs возвращает отсортированный список ID узлов.
func (t *Topology) NodeIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// Relationship возвращает связь source → target.
func (n *Node) Relationship(target string) (*Relationship, bool) {
	for i := range n.Relationships {
		if n.Relationships[i].Target == target {
			return &n.Relationships[i], true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию топологии.
func (t Topology) Clone() Topology {
	out := Topology{}
	if t.Nodes != nil {
		out.Nodes = make([]Node, len(t.Nodes))
		for i, n := range t.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}
	if t.Outputs != nil {
		out.Outputs = make(map[string]Output, len(t.Outputs))
		for k, o := range t.Outputs {
			out.Outputs[k] = Output{Description: o.Description, Value: cloneValue(o.Value)}
		}
	}
	return out
}

// Clone возвращает глубокую копию узла.
func (n Node) Clone() Node {
	out := Node{
		ID:         n.ID,
		Type:       n.Type,
		Properties: cloneMap(n.Properties),
	}
	if n.Relationships != nil {
		out.Relationships = make([]Relationship, len(n.Relationships))
		for i, r := range n.Relationships {
			out.Relationships[i] = Relationship{
				Type:       r.Type,
				Target:     r.Target,
				Properties: cloneMap(r.Properties),
			}
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
