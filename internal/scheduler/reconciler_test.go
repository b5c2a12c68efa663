package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/maintenance"
	"github.com/shaiso/Helmsman/internal/memstore"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *memstore.Store
	gate       *maintenance.Controller
	reconciler *Reconciler
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: memstore.New(), now: epoch}
	clock := func() time.Time { return f.now }

	f.gate = maintenance.New(maintenance.Config{Store: f.store.Executions, Clock: clock, Logger: quietLogger()})
	f.reconciler = New(Config{
		Gate:             f.gate,
		Executions:       f.store.Executions,
		ExecutionTimeout: 10 * time.Minute,
		Clock:            clock,
		Logger:           quietLogger(),
	})
	return f
}

func (f *fixture) admit(t *testing.T, id string, createdAt time.Time) {
	t.Helper()
	err := f.gate.AdmitExecutions(context.Background(), []domain.Execution{
		{ID: id, WorkflowID: "install", DeploymentID: "dep1", CreatedAt: createdAt},
	})
	if err != nil {
		t.Fatalf("admit %s: %v", id, err)
	}
}

func (f *fixture) status(t *testing.T, id string) domain.ExecutionStatus {
	t.Helper()
	e, err := f.store.Executions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return e.Status
}

func TestTick_ExpiresStaleExecutions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.admit(t, "old", epoch.Add(-time.Hour))
	f.admit(t, "fresh", epoch.Add(-time.Minute))

	if err := f.reconciler.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	if got := f.status(t, "old"); got != domain.ExecutionStatusTimedOut {
		t.Errorf("old status = %s, want timed_out", got)
	}
	if got := f.status(t, "fresh"); got != domain.ExecutionStatusPending {
		t.Errorf("fresh status = %s, want pending", got)
	}

	// Повторный тик ничего не меняет.
	if err := f.reconciler.Tick(ctx); err != nil {
		t.Fatalf("second Tick() error = %v", err)
	}
	if got := f.status(t, "fresh"); got != domain.ExecutionStatusPending {
		t.Errorf("fresh status after second tick = %s, want pending", got)
	}
}

func TestTick_PromotesMaintenance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.admit(t, "e1", epoch.Add(-time.Hour))
	f.admit(t, "e2", epoch)

	res, err := f.gate.Activate(ctx, "admin")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if res.State.Status != domain.MaintenanceActivating || res.State.RemainingExecutions != 2 {
		t.Fatalf("state = %+v, want activating with 2 remaining", res.State)
	}

	// e1 зависло, e2 ещё в пределах таймаута.
	if err := f.reconciler.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	state, err := f.gate.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if state.Status != domain.MaintenanceActivating || state.RemainingExecutions != 1 {
		t.Fatalf("state = %+v, want activating with 1 remaining", state)
	}

	f.now = epoch.Add(time.Hour)
	if err := f.reconciler.Tick(ctx); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	state, err = f.gate.CurrentState(ctx)
	if err != nil {
		t.Fatalf("CurrentState() error = %v", err)
	}
	if state.Status != domain.MaintenanceActivated || state.RemainingExecutions != 0 {
		t.Errorf("state = %+v, want activated", state)
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{"@every 30s", false},
		{"*/5 * * * *", false},
		{"@hourly", false},
		{"every minute", true},
		{"* * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSchedule(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.reconciler.Run(ctx, "@every 1h") }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if err := f.reconciler.Run(context.Background(), "bogus"); err == nil {
		t.Error("Run() with invalid schedule: expected error")
	}
}
