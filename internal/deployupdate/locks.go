package deployupdate

import "sync"

// lockTable — эксклюзивные секции по deployment_id.
// Захват не ждёт: занятая секция означает конфликт.
// Запись в held существует только пока секция занята.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

// TryAcquire захватывает секцию deployment. Возвращает false, если она занята.
func (l *lockTable) TryAcquire(deploymentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[deploymentID]; busy {
		return false
	}
	l.held[deploymentID] = struct{}{}
	return true
}

// Release освобождает секцию. Освобождение свободной секции ничего не делает.
func (l *lockTable) Release(deploymentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, deploymentID)
}

// Held сообщает, занята ли секция.
func (l *lockTable) Held(deploymentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[deploymentID]
	return ok
}

