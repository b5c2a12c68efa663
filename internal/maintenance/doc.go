// Package maintenance реализует maintenance mode: глобальный шлюз допуска executions.
//
// Состояние хранится в GateStore. Все решения (допуск executions,
// активация, обратный отсчёт remaining_executions) выполняются внутри
// GateStore.WithinLock, поэтому проверка и запись атомарны относительно
// параллельных activate и запусков executions.
//
// Переходы:
//
//	deactivated → activating → activated
//	(любой)     → deactivated
package maintenance
