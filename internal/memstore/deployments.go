package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shaiso/Helmsman/internal/domain"
)

// DeploymentStore — in-memory domain.DeploymentRepository.
type DeploymentStore struct {
	mu          sync.RWMutex
	deployments map[string]*domain.Deployment
}

// NewDeploymentStore создаёт пустое хранилище deployments.
func NewDeploymentStore() *DeploymentStore {
	return &DeploymentStore{deployments: make(map[string]*domain.Deployment)}
}

// Get возвращает deployment по ID.
func (s *DeploymentStore) Get(_ context.Context, id string) (*domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", domain.ErrNotFound, id)
	}
	return d.Clone(), nil
}

// Put создаёт или заменяет deployment.
func (s *DeploymentStore) Put(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := d.Clone()
	stored.UpdatedAt = time.Now()
	s.deployments[d.ID] = stored
	return nil
}

// SetTopology заменяет топологию deployment.
// Пустой blueprintID оставляет текущий.
func (s *DeploymentStore) SetTopology(_ context.Context, id string, topology domain.Topology, blueprintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deployments[id]
	if !ok {
		return fmt.Errorf("%w: deployment %s", domain.ErrNotFound, id)
	}

	d.Topology = topology.Clone()
	if blueprintID != "" {
		d.BlueprintID = blueprintID
	}
	d.UpdatedAt = time.Now()
	return nil
}
