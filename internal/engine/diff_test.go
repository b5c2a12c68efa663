package engine

import (
	"testing"

	"github.com/shaiso/Helmsman/internal/domain"
)

func stepKeys(steps []domain.UpdateStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s.Operation) + " " + s.Key()
	}
	return out
}

func TestDiff_NoChanges(t *testing.T) {
	topo := &domain.Topology{Nodes: []domain.Node{node("vm", "net"), node("net")}}

	steps, err := Diff(topo, topo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %v", stepKeys(steps))
	}
}

func TestDiff_Ordering(t *testing.T) {
	oldNet := node("net")
	oldNet.Properties = map[string]any{"cidr": "10.0.0.0/24"}

	old := &domain.Topology{
		Nodes: []domain.Node{
			node("lb", "web"),
			node("web", "net"),
			oldNet,
			node("legacy", "net"),
		},
		Outputs: map[string]domain.Output{
			"old_endpoint": {Value: "a"},
			"ip":           {Value: "1.1.1.1"},
		},
	}

	newNet := node("net")
	newNet.Properties = map[string]any{"cidr": "10.0.1.0/24"}

	next := &domain.Topology{
		Nodes: []domain.Node{
			node("lb"),
			node("web", "net"),
			newNet,
			node("db", "net"),
			node("app", "db", "web"),
		},
		Outputs: map[string]domain.Output{
			"ip":       {Value: "2.2.2.2"},
			"endpoint": {Value: "b"},
		},
	}

	steps, err := Diff(old, next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"add node:db",
		"add relationship:db->net",
		"add node:app",
		"add relationship:app->db",
		"add relationship:app->web",
		"add output:endpoint",
		"modify node:net",
		"modify output:ip",
		"remove output:old_endpoint",
		"remove relationship:lb->web",
		"remove node:legacy",
	}

	got := stepKeys(steps)
	if len(got) != len(want) {
		t.Fatalf("expected %d steps, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %q, got %q", i, want[i], got[i])
		}
		if steps[i].Index != i {
			t.Errorf("step %d: expected index %d, got %d", i, i, steps[i].Index)
		}
	}

	if err := ValidateOrder(steps, old, next); err != nil {
		t.Errorf("diffed steps violate ordering: %v", err)
	}
}

func TestDiff_RemovesDependentsFirst(t *testing.T) {
	old := &domain.Topology{
		Nodes: []domain.Node{
			node("app", "db"),
			node("db", "disk"),
			node("disk"),
		},
	}
	next := &domain.Topology{}

	steps, err := Diff(old, next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"remove node:app", "remove node:db", "remove node:disk"}
	got := stepKeys(steps)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if err := ValidateOrder(steps, old, next); err != nil {
		t.Errorf("diffed steps violate ordering: %v", err)
	}
}

func TestDiff_RelationshipModified(t *testing.T) {
	old := &domain.Topology{Nodes: []domain.Node{node("vm", "net"), node("net")}}

	vm := node("vm")
	vm.Relationships = []domain.Relationship{{Type: "connected_to", Target: "net"}}
	next := &domain.Topology{Nodes: []domain.Node{vm, node("net")}}

	steps, err := Diff(old, next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 1 || stepKeys(steps)[0] != "modify relationship:vm->net" {
		t.Errorf("unexpected steps %v", stepKeys(steps))
	}
}

func TestDiff_NilAndEmptyPropertiesEqual(t *testing.T) {
	a := node("vm")
	b := node("vm")
	b.Properties = map[string]any{}

	steps, err := Diff(&domain.Topology{Nodes: []domain.Node{a}}, &domain.Topology{Nodes: []domain.Node{b}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %v", stepKeys(steps))
	}
}

func TestDiff_InvalidTopology(t *testing.T) {
	bad := &domain.Topology{Nodes: []domain.Node{node("a", "b"), node("b", "a")}}

	if _, err := Diff(&domain.Topology{}, bad); err == nil {
		t.Error("expected error for cyclic topology")
	}
}

func TestParseIDs(t *testing.T) {
	if s, tg, ok := ParseRelationshipID("a->b"); !ok || s != "a" || tg != "b" {
		t.Errorf("unexpected relationship parse: %q %q %v", s, tg, ok)
	}
	if _, _, ok := ParseRelationshipID("->b"); ok {
		t.Error("expected failure for empty source")
	}
	if n, k, ok := ParsePropertyID("vm.image.tag"); !ok || n != "vm" || k != "image.tag" {
		t.Errorf("unexpected property parse: %q %q %v", n, k, ok)
	}
}
