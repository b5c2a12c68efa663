// Package memstore содержит in-memory реализации хранилищ domain.
//
// Используется в тестах и при STORE_DRIVER=memory. Семантика совпадает
// с PostgreSQL реализацией в пакете repo: те же ошибки ErrNotFound,
// ErrConflict, ErrInvalidState и та же атомарность GateStore.WithinLock.
package memstore

import "github.com/shaiso/Helmsman/internal/domain"

// Store объединяет все in-memory хранилища.
type Store struct {
	Updates     *UpdateStore
	Deployments *DeploymentStore
	Executions  *ExecutionStore
}

// New создаёт пустой Store.
func New() *Store {
	return &Store{
		Updates:     NewUpdateStore(),
		Deployments: NewDeploymentStore(),
		Executions:  NewExecutionStore(),
	}
}

var (
	_ domain.UpdateRepository     = (*UpdateStore)(nil)
	_ domain.DeploymentRepository = (*DeploymentStore)(nil)
	_ domain.ExecutionRepository  = (*ExecutionStore)(nil)
	_ domain.GateStore            = (*ExecutionStore)(nil)
)
