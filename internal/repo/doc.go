// Package repo содержит PostgreSQL реализации хранилищ domain.
//
// Схема создаётся встроенными goose миграциями (Migrate).
// Секция maintenance gate — транзакция под pg_advisory_xact_lock:
// решение о допуске executions и изменение записи maintenance mode
// сериализуются между всеми экземплярами сервера.
package repo

import "github.com/shaiso/Helmsman/internal/domain"

var (
	_ domain.UpdateRepository     = (*UpdateRepo)(nil)
	_ domain.DeploymentRepository = (*DeploymentRepo)(nil)
	_ domain.ExecutionRepository  = (*ExecutionRepo)(nil)
	_ domain.GateStore            = (*ExecutionRepo)(nil)
)
