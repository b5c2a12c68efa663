package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Helmsman/internal/domain"
)

// node создаёт узел со связями на targets.
func node(id string, targets ...string) domain.Node {
	n := domain.Node{ID: id, Type: "compute"}
	for _, t := range targets {
		n.Relationships = append(n.Relationships, domain.Relationship{Type: "depends_on", Target: t})
	}
	return n
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	// vm → net → router
	topo := &domain.Topology{
		Nodes: []domain.Node{
			node("vm", "net"),
			node("net", "router"),
			node("router"),
		},
	}

	g, err := BuildGraph(topo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}

	if len(g.RootNodes) != 1 || g.RootNodes[0].ID != "router" {
		t.Fatalf("expected single root router, got %v", ids(g.RootNodes))
	}

	vm := g.GetNode("vm")
	if len(vm.DependsOn) != 1 || vm.DependsOn[0].ID != "net" {
		t.Error("vm should depend on net")
	}

	want := []string{"router", "net", "vm"}
	got := ids(g.Order)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// app → db → storage
	// app → cache → storage
	topo := &domain.Topology{
		Nodes: []domain.Node{
			node("app", "db", "cache"),
			node("db", "storage"),
			node("cache", "storage"),
			node("storage"),
		},
	}

	g, err := BuildGraph(topo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before := [][2]string{
		{"storage", "db"},
		{"storage", "cache"},
		{"db", "app"},
		{"cache", "app"},
	}
	for _, pair := range before {
		if g.Position(pair[0]) > g.Position(pair[1]) {
			t.Errorf("%s should come before %s", pair[0], pair[1])
		}
	}

	rev := ids(g.Reverse())
	if rev[0] != "app" || rev[len(rev)-1] != "storage" {
		t.Errorf("unexpected reverse order %v", rev)
	}
}

func TestBuildGraph_DuplicateRelationshipCountedOnce(t *testing.T) {
	n := node("a", "b")
	n.Relationships = append(n.Relationships, domain.Relationship{Type: "connected_to", Target: "b"})
	topo := &domain.Topology{Nodes: []domain.Node{n, node("b")}}

	g, err := BuildGraph(topo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.GetNode("a").InDegree != 1 {
		t.Errorf("expected in-degree 1, got %d", g.GetNode("a").InDegree)
	}
}

func TestBuildGraph_Errors(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []domain.Node
		wantErr error
	}{
		{
			name:    "empty id",
			nodes:   []domain.Node{node("")},
			wantErr: ErrEmptyNodeID,
		},
		{
			name:    "duplicate id",
			nodes:   []domain.Node{node("a"), node("a")},
			wantErr: ErrDuplicateNodeID,
		},
		{
			name:    "unknown target",
			nodes:   []domain.Node{node("a", "ghost")},
			wantErr: ErrUnknownTarget,
		},
		{
			name:    "self dependency",
			nodes:   []domain.Node{node("a", "a")},
			wantErr: ErrSelfDependency,
		},
		{
			name:    "cycle",
			nodes:   []domain.Node{node("a", "c"), node("b", "a"), node("c", "b")},
			wantErr: ErrCyclicDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph(&domain.Topology{Nodes: tt.nodes})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if !errors.Is(err, domain.ErrBadParameters) {
				t.Errorf("expected error to wrap ErrBadParameters, got %v", err)
			}
		})
	}
}

func TestGraph_PositionUnknown(t *testing.T) {
	g, err := BuildGraph(&domain.Topology{Nodes: []domain.Node{node("a")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Position("missing") != -1 {
		t.Error("expected -1 for unknown node")
	}
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
