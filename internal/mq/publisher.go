package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Helmsman/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionTask   MessageType = "execution.task"
	MessageTypeExecutionReport MessageType = "execution.report"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует задачи executions в RabbitMQ.
// Реализует dispatch.Channel.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в exchange с routing key.
// correlationID попадает в свойство CorrelationId.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, correlationID string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     msg.ID,
				CorrelationId: correlationID,
				Type:          string(msg.Type),
				Timestamp:     msg.Timestamp,
				Body:          body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"correlation_id", correlationID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishTask отправляет контекст execution в очередь управления.
// execution_id служит correlation key.
func (p *Publisher) PublishTask(ctx context.Context, task domain.TaskMessage) error {
	routingKey, err := routingKeyFor(task.Queue)
	if err != nil {
		return err
	}

	return p.Publish(ctx, ExchangeExecutions, routingKey, task.ExecutionID, newMessage(MessageTypeExecutionTask, task))
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
