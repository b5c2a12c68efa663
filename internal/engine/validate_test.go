package engine

import (
	"errors"
	"testing"

	"github.com/shaiso/Helmsman/internal/domain"
)

func TestValidateTopology(t *testing.T) {
	tests := []struct {
		name    string
		topo    *domain.Topology
		wantErr error
	}{
		{
			name: "nil topology",
			topo: nil,
		},
		{
			name: "empty topology",
			topo: &domain.Topology{},
		},
		{
			name: "valid topology",
			topo: &domain.Topology{
				Nodes:   []domain.Node{node("vm", "net"), node("net")},
				Outputs: map[string]domain.Output{"endpoint": {Value: "10.0.0.1"}},
			},
		},
		{
			name: "empty output name",
			topo: &domain.Topology{
				Outputs: map[string]domain.Output{"": {Value: 1}},
			},
			wantErr: domain.ErrBadParameters,
		},
		{
			name:    "unknown target",
			topo:    &domain.Topology{Nodes: []domain.Node{node("vm", "net")}},
			wantErr: ErrUnknownTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopology(tt.topo)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name    string
		step    domain.UpdateStep
		wantErr error
	}{
		{
			name: "node add",
			step: domain.UpdateStep{Operation: domain.StepAdd, EntityType: domain.EntityNode, EntityID: "vm"},
		},
		{
			name: "relationship",
			step: domain.UpdateStep{Operation: domain.StepRemove, EntityType: domain.EntityRelationship, EntityID: "vm->net"},
		},
		{
			name: "nested property key",
			step: domain.UpdateStep{Operation: domain.StepModify, EntityType: domain.EntityProperty, EntityID: "vm.image.tag"},
		},
		{
			name:    "unknown operation",
			step:    domain.UpdateStep{Operation: "rename", EntityType: domain.EntityNode, EntityID: "vm"},
			wantErr: domain.ErrBadParameters,
		},
		{
			name:    "unknown entity type",
			step:    domain.UpdateStep{Operation: domain.StepAdd, EntityType: "group", EntityID: "g"},
			wantErr: domain.ErrBadParameters,
		},
		{
			name:    "empty entity id",
			step:    domain.UpdateStep{Operation: domain.StepAdd, EntityType: domain.EntityOutput},
			wantErr: domain.ErrBadParameters,
		},
		{
			name:    "malformed relationship",
			step:    domain.UpdateStep{Operation: domain.StepAdd, EntityType: domain.EntityRelationship, EntityID: "vm"},
			wantErr: ErrMalformedEntityID,
		},
		{
			name:    "malformed property",
			step:    domain.UpdateStep{Operation: domain.StepAdd, EntityType: domain.EntityProperty, EntityID: "vm."},
			wantErr: ErrMalformedEntityID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(tt.step)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
