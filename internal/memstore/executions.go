package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Helmsman/internal/domain"
)

// ExecutionStore — in-memory domain.ExecutionRepository и domain.GateStore.
//
// Один mutex защищает executions и запись maintenance mode,
// что даёт ту же атомарность, что advisory lock в PostgreSQL.
type ExecutionStore struct {
	mu          sync.Mutex
	executions  map[string]*domain.Execution
	maintenance *domain.MaintenanceState
}

// NewExecutionStore создаёт пустое хранилище.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{executions: make(map[string]*domain.Execution)}
}

// Get возвращает execution по ID.
func (s *ExecutionStore) Get(_ context.Context, id string) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
	}
	return e.Clone(), nil
}

// ListByIDs возвращает executions в порядке ids. Неизвестные ID пропускаются.
func (s *ExecutionStore) ListByIDs(_ context.Context, ids []string) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Execution, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.executions[id]; ok {
			out = append(out, *e.Clone())
		}
	}
	return out, nil
}

// ListRunningCreatedBefore возвращает выполняющиеся executions старше before,
// от старых к новым.
func (s *ExecutionStore) ListRunningCreatedBefore(_ context.Context, before time.Time, limit int) ([]domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Execution, 0)
	for _, e := range s.executions {
		if e.Status.IsRunning() && e.CreatedAt.Before(before) {
			out = append(out, *e.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// WithinLock выполняет fn эксклюзивно. Изменения применяются,
// только если fn вернула nil.
func (s *ExecutionStore) WithinLock(ctx context.Context, fn func(ctx context.Context, tx domain.GateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &gateTx{
		store:  s,
		writes: make(map[string]*domain.Execution),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.maintenanceSet {
		s.maintenance = tx.maintenance
	}
	for id, e := range tx.writes {
		s.executions[id] = e
	}
	return nil
}

// gateTx накапливает изменения до успешного завершения WithinLock.
type gateTx struct {
	store *ExecutionStore

	maintenance    *domain.MaintenanceState
	maintenanceSet bool

	writes map[string]*domain.Execution
}

func (tx *gateTx) currentMaintenance() *domain.MaintenanceState {
	if tx.maintenanceSet {
		return tx.maintenance
	}
	return tx.store.maintenance
}

func (tx *gateTx) GetMaintenance(_ context.Context) (*domain.MaintenanceState, error) {
	m := tx.currentMaintenance()
	if m == nil {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (tx *gateTx) PutMaintenance(_ context.Context, state domain.MaintenanceState) error {
	tx.maintenance = &state
	tx.maintenanceSet = true
	return nil
}

func (tx *gateTx) DeleteMaintenance(_ context.Context) (bool, error) {
	existed := tx.currentMaintenance() != nil
	tx.maintenance = nil
	tx.maintenanceSet = true
	return existed, nil
}

func (tx *gateTx) lookup(id string) (*domain.Execution, bool) {
	if e, ok := tx.writes[id]; ok {
		return e, true
	}
	e, ok := tx.store.executions[id]
	return e, ok
}

func (tx *gateTx) CountRunningExecutions(_ context.Context) (int, error) {
	count := 0
	for id, e := range tx.store.executions {
		if _, overridden := tx.writes[id]; overridden {
			continue
		}
		if e.Status.IsRunning() {
			count++
		}
	}
	for _, e := range tx.writes {
		if e.Status.IsRunning() {
			count++
		}
	}
	return count, nil
}

func (tx *gateTx) CreateExecutions(_ context.Context, execs []domain.Execution) error {
	for i := range execs {
		if _, exists := tx.lookup(execs[i].ID); exists {
			return fmt.Errorf("%w: execution %s already exists", domain.ErrConflict, execs[i].ID)
		}
		tx.writes[execs[i].ID] = execs[i].Clone()
	}
	return nil
}

func (tx *gateTx) GetExecution(_ context.Context, id string) (*domain.Execution, error) {
	e, ok := tx.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (tx *gateTx) UpdateExecution(_ context.Context, e *domain.Execution) error {
	if _, ok := tx.lookup(e.ID); !ok {
		return fmt.Errorf("%w: execution %s", domain.ErrNotFound, e.ID)
	}
	tx.writes[e.ID] = e.Clone()
	return nil
}
