package dispatch

import (
	"context"
	"testing"

	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/maintenance"
	"github.com/shaiso/Helmsman/internal/memstore"
)

func TestIntake_Handle(t *testing.T) {
	ctx := context.Background()
	executions := memstore.NewExecutionStore()
	gate := maintenance.New(maintenance.Config{Store: executions})
	intake := NewIntake(gate, nil)

	if err := gate.AdmitExecutions(ctx, []domain.Execution{{ID: "e1"}}); err != nil {
		t.Fatalf("admit: %v", err)
	}

	steps := []struct {
		report domain.ExecutionReport
		want   domain.ExecutionStatus
	}{
		{domain.ExecutionReport{ExecutionID: "e1", Status: domain.ExecutionStatusStarted}, domain.ExecutionStatusStarted},
		{domain.ExecutionReport{ExecutionID: "e1", Status: domain.ExecutionStatusFailed, Error: "boom"}, domain.ExecutionStatusFailed},
		// Повтор доставки
		{domain.ExecutionReport{ExecutionID: "e1", Status: domain.ExecutionStatusTerminated}, domain.ExecutionStatusFailed},
		{domain.ExecutionReport{ExecutionID: "e1", Status: "exploded"}, domain.ExecutionStatusFailed},
	}

	for i, s := range steps {
		if err := intake.Handle(ctx, s.report); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		e, _ := executions.Get(ctx, "e1")
		if e.Status != s.want {
			t.Errorf("step %d: expected %s, got %s", i, s.want, e.Status)
		}
	}

	// Неизвестный execution отбрасывается без повтора
	if err := intake.Handle(ctx, domain.ExecutionReport{ExecutionID: "ghost", Status: domain.ExecutionStatusTerminated}); err != nil {
		t.Errorf("unknown execution should be dropped, got %v", err)
	}
}
