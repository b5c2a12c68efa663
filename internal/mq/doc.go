// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация задач executions в очередь управления
//   - consumer.go   — потребление отчётов workers
//
// Типы сообщений:
//   - execution.task   — контекст execution для worker
//   - execution.report — отчёт worker о ходе execution
//
// Exchanges:
//   - helmsman.executions — задачи и отчёты
//   - helmsman.dlq        — dead letter queue
package mq
