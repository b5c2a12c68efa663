package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
)

func newUpdate(deploymentID string, state domain.UpdateState, createdAt time.Time) *domain.DeploymentUpdate {
	return &domain.DeploymentUpdate{
		ID:           uuid.New(),
		DeploymentID: deploymentID,
		State:        state,
		CreatedAt:    createdAt,
	}
}

func TestUpdateStore_SingleActivePerDeployment(t *testing.T) {
	ctx := context.Background()
	s := NewUpdateStore()

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, newUpdate("dep1", domain.UpdateStateStaged, time.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != callers-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", callers-1, succeeded, conflicts)
	}

	// Терминальные updates не мешают
	if err := s.Create(ctx, newUpdate("dep1", domain.UpdateStateCommitted, time.Now())); err != nil {
		t.Errorf("terminal update should not conflict: %v", err)
	}
}

func TestUpdateStore_AppendStepAndTransition(t *testing.T) {
	ctx := context.Background()
	s := NewUpdateStore()

	u := newUpdate("dep1", domain.UpdateStateStaged, time.Now())
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}

	step := domain.UpdateStep{Operation: domain.StepAdd, EntityType: domain.EntityNode, EntityID: "vm"}
	appended, err := s.AppendStep(ctx, u.ID, step)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if appended.Index != 0 {
		t.Errorf("expected index 0, got %d", appended.Index)
	}
	if appended, _ = s.AppendStep(ctx, u.ID, step); appended.Index != 1 {
		t.Errorf("expected index 1, got %d", appended.Index)
	}

	updating := u.Clone()
	updating.State = domain.UpdateStateUpdating
	if err := s.Transition(ctx, updating, domain.UpdateStateStaged); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// CAS: второй переход из staged уже невозможен
	if err := s.Transition(ctx, updating, domain.UpdateStateStaged); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if _, err := s.AppendStep(ctx, u.ID, step); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	if _, err := s.Get(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStore_List(t *testing.T) {
	ctx := context.Background()
	s := NewUpdateStore()
	base := time.Now()

	for i, dep := range []string{"dep1", "dep2", "dep1", "dep1"} {
		state := domain.UpdateStateCommitted
		if i == 3 {
			state = domain.UpdateStateStaged
		}
		if err := s.Create(ctx, newUpdate(dep, state, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter domain.UpdateFilter
		want   int
	}{
		{name: "all", filter: domain.UpdateFilter{}, want: 4},
		{name: "by deployment", filter: domain.UpdateFilter{DeploymentID: "dep1"}, want: 3},
		{name: "by state", filter: domain.UpdateFilter{State: domain.UpdateStateStaged}, want: 1},
		{name: "limit", filter: domain.UpdateFilter{Limit: 2}, want: 2},
		{name: "offset", filter: domain.UpdateFilter{Offset: 3}, want: 1},
		{name: "offset past end", filter: domain.UpdateFilter{Offset: 10}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d updates, got %d", tt.want, len(got))
			}
		})
	}

	desc, _ := s.List(ctx, domain.UpdateFilter{Descending: true})
	if !desc[0].CreatedAt.After(desc[len(desc)-1].CreatedAt) {
		t.Error("expected descending order by created_at")
	}
}

func TestExecutionStore_WithinLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	boom := errors.New("boom")

	err := s.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		if err := tx.PutMaintenance(ctx, domain.MaintenanceState{Status: domain.MaintenanceActivated}); err != nil {
			return err
		}
		if err := tx.CreateExecutions(ctx, []domain.Execution{{ID: "e1", Status: domain.ExecutionStatusPending}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = s.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		m, _ := tx.GetMaintenance(ctx)
		if m != nil {
			t.Error("maintenance state should not be persisted")
		}
		n, _ := tx.CountRunningExecutions(ctx)
		if n != 0 {
			t.Errorf("expected 0 running executions, got %d", n)
		}
		return nil
	})

	if _, err := s.Get(ctx, "e1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionStore_CountAndList(t *testing.T) {
	ctx := context.Background()
	s := NewExecutionStore()
	old := time.Now().Add(-2 * time.Hour)

	err := s.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		return tx.CreateExecutions(ctx, []domain.Execution{
			{ID: "old", Status: domain.ExecutionStatusStarted, CreatedAt: old},
			{ID: "new", Status: domain.ExecutionStatusPending, CreatedAt: time.Now()},
			{ID: "done", Status: domain.ExecutionStatusTerminated, CreatedAt: old},
		})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_ = s.WithinLock(ctx, func(ctx context.Context, tx domain.GateTx) error {
		n, _ := tx.CountRunningExecutions(ctx)
		if n != 2 {
			t.Errorf("expected 2 running, got %d", n)
		}

		e, err := tx.GetExecution(ctx, "new")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		e.Finish(domain.ExecutionStatusFailed, "boom")
		if err := tx.UpdateExecution(ctx, e); err != nil {
			t.Fatalf("update: %v", err)
		}

		n, _ = tx.CountRunningExecutions(ctx)
		if n != 1 {
			t.Errorf("expected 1 running inside tx, got %d", n)
		}

		if err := tx.CreateExecutions(ctx, []domain.Execution{{ID: "old"}}); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
		return nil
	})

	stale, err := s.ListRunningCreatedBefore(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "old" {
		t.Errorf("expected only old execution, got %v", stale)
	}

	got, _ := s.ListByIDs(ctx, []string{"done", "missing", "new"})
	if len(got) != 2 || got[0].ID != "done" || got[1].Status != domain.ExecutionStatusFailed {
		t.Errorf("unexpected ListByIDs result: %v", got)
	}
}

func TestDeploymentStore_SetTopology(t *testing.T) {
	ctx := context.Background()
	s := NewDeploymentStore()

	if err := s.SetTopology(ctx, "missing", domain.Topology{}, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.Put(ctx, &domain.Deployment{ID: "dep1", BlueprintID: "bp1"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	topo := domain.Topology{Nodes: []domain.Node{{ID: "vm"}}}
	if err := s.SetTopology(ctx, "dep1", topo, ""); err != nil {
		t.Fatalf("set topology: %v", err)
	}
	topo.Nodes[0].ID = "mutated"

	d, err := s.Get(ctx, "dep1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.BlueprintID != "bp1" {
		t.Errorf("expected blueprint bp1, got %s", d.BlueprintID)
	}
	if _, ok := d.Topology.Node("vm"); !ok {
		t.Error("stored topology should not alias caller's value")
	}
}
