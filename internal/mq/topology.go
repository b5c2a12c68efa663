package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeExecutions Exchange = "helmsman.executions"
	ExchangeDLQ        Exchange = "helmsman.dlq"
)

// Queues — имена очередей.
const (
	// QueueManagement — фиксированная очередь управления, её слушают workers.
	QueueManagement Queue = "helmsman.management"

	// QueueExecutionsCompleted — отчёты workers.
	QueueExecutionsCompleted Queue = "executions.completed"

	QueueDLQManagement Queue = "dlq.management"
	QueueDLQReports    Queue = "dlq.reports"
)

// Routing keys.
const (
	RoutingKeyManagement RoutingKey = "helmsman.management"
	RoutingKeyCompleted  RoutingKey = "completed"
	RoutingKeyDLQTasks   RoutingKey = "tasks"
	RoutingKeyDLQReports RoutingKey = "reports"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeExecutions, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

func dlqArgs(key RoutingKey) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(key),
	}
}

func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Задачи, отвергнутые workers, уходят в DLQ
		{QueueManagement, dlqArgs(RoutingKeyDLQTasks)},

		// Отчёты, которые не удалось применить после повтора
		{QueueExecutionsCompleted, dlqArgs(RoutingKeyDLQReports)},

		{QueueDLQManagement, nil},
		{QueueDLQReports, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueManagement, RoutingKeyManagement, ExchangeExecutions},
		{QueueExecutionsCompleted, RoutingKeyCompleted, ExchangeExecutions},
		{QueueDLQManagement, RoutingKeyDLQTasks, ExchangeDLQ},
		{QueueDLQReports, RoutingKeyDLQReports, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// routingKeyFor возвращает routing key логической очереди задач.
func routingKeyFor(queue string) (RoutingKey, error) {
	switch Queue(queue) {
	case QueueManagement:
		return RoutingKeyManagement, nil
	default:
		return "", fmt.Errorf("unknown task queue %q", queue)
	}
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Helmsman RabbitMQ Topology:

    helmsman.executions (direct)
    ├── helmsman.management [routing: helmsman.management]
    │       Consumer: workers
    │       DLQ: dlq.management
    └── executions.completed [routing: completed]
            Consumer: helmsman-server (completion intake)
            DLQ: dlq.reports

    helmsman.dlq (direct)
    ├── dlq.management [routing: tasks]
    └── dlq.reports [routing: reports]
            Manual processing
  `
}
