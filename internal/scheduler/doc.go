// Package scheduler реализует периодическую сверку состояния control plane.
//
// Reconciler по расписанию cron:
//   - помечает executions, выполняющиеся дольше ExecutionTimeout, как timed_out
//   - выравнивает remaining_executions maintenance mode по живому числу
//     executions и переводит activating в activated
//
// Обе операции покрывают потерянные отчёты workers.
//
// Структура:
//   - reconciler.go — Reconciler (Tick, sweep)
//   - cron.go       — разбор расписания и запуск по cron
//
// Использование:
//
//	rec := scheduler.New(scheduler.Config{
//	    Gate:             controller,
//	    Executions:       executionRepo,
//	    ExecutionTimeout: time.Hour,
//	    Logger:           logger,
//	})
//
//	// Блокируется до отмены ctx
//	if err := rec.Run(ctx, "@every 30s"); err != nil {
//	    logger.Error("reconciler failed", "error", err)
//	}
//
// Leader Election:
//
// Reconciler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
package scheduler
