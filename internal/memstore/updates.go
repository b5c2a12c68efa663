package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Helmsman/internal/domain"
)

// UpdateStore — in-memory domain.UpdateRepository.
type UpdateStore struct {
	mu      sync.RWMutex
	updates map[uuid.UUID]*domain.DeploymentUpdate
}

// NewUpdateStore создаёт пустое хранилище updates.
func NewUpdateStore() *UpdateStore {
	return &UpdateStore{updates: make(map[uuid.UUID]*domain.DeploymentUpdate)}
}

// activeFor возвращает активный update deployment, кроме except.
// Вызывается под блокировкой.
func (s *UpdateStore) activeFor(deploymentID string, except uuid.UUID) *domain.DeploymentUpdate {
	for _, u := range s.updates {
		if u.DeploymentID == deploymentID && u.ID != except && u.State.IsActive() {
			return u
		}
	}
	return nil
}

// Create сохраняет новый update.
func (s *UpdateStore) Create(_ context.Context, u *domain.DeploymentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.updates[u.ID]; exists {
		return fmt.Errorf("%w: update %s already exists", domain.ErrConflict, u.ID)
	}
	if u.State.IsActive() {
		if active := s.activeFor(u.DeploymentID, u.ID); active != nil {
			return fmt.Errorf("%w: deployment %s already has update %s in %s",
				domain.ErrConflict, u.DeploymentID, active.ID, active.State)
		}
	}

	s.updates[u.ID] = u.Clone()
	return nil
}

// Get возвращает update по ID.
func (s *UpdateStore) Get(_ context.Context, id uuid.UUID) (*domain.DeploymentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.updates[id]
	if !ok {
		return nil, fmt.Errorf("%w: update %s", domain.ErrNotFound, id)
	}
	return u.Clone(), nil
}

// List возвращает updates по фильтру.
func (s *UpdateStore) List(_ context.Context, filter domain.UpdateFilter) ([]domain.DeploymentUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DeploymentUpdate, 0)
	for _, u := range s.updates {
		if filter.DeploymentID != "" && u.DeploymentID != filter.DeploymentID {
			continue
		}
		if filter.State != "" && u.State != filter.State {
			continue
		}
		out = append(out, *u.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if filter.Descending {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.DeploymentUpdate{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}

	return out, nil
}

// AppendStep добавляет шаг к staged update со следующим ordering_index.
func (s *UpdateStore) AppendStep(_ context.Context, id uuid.UUID, step domain.UpdateStep) (domain.UpdateStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.updates[id]
	if !ok {
		return domain.UpdateStep{}, fmt.Errorf("%w: update %s", domain.ErrNotFound, id)
	}
	return u.AppendStep(step.Operation, step.EntityType, step.EntityID)
}

// Transition сохраняет update, если его сохранённое состояние равно from.
func (s *UpdateStore) Transition(_ context.Context, u *domain.DeploymentUpdate, from domain.UpdateState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.updates[u.ID]
	if !ok {
		return fmt.Errorf("%w: update %s", domain.ErrNotFound, u.ID)
	}
	if stored.State != from {
		return fmt.Errorf("%w: update %s is %s, expected %s", domain.ErrConflict, u.ID, stored.State, from)
	}

	s.updates[u.ID] = u.Clone()
	return nil
}
