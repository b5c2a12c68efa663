package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Helmsman/internal/domain"
)

type recordingSink struct {
	reports []domain.ExecutionReport
	err     error
}

func (s *recordingSink) Handle(_ context.Context, r domain.ExecutionReport) error {
	s.reports = append(s.reports, r)
	return s.err
}

func TestReportHandler(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	handle := ReportHandler(sink)

	report := &Delivery{
		Message: Message{
			Type: MessageTypeExecutionReport,
			// Payload после json.Unmarshal конверта — map
			Payload: map[string]any{"status": "terminated"},
		},
		Raw: amqp.Delivery{CorrelationId: "exec-1"},
	}
	if err := handle(ctx, report); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(sink.reports))
	}
	got := sink.reports[0]
	if got.ExecutionID != "exec-1" || got.Status != domain.ExecutionStatusTerminated {
		t.Errorf("unexpected report %+v", got)
	}

	// Чужие сообщения подтверждаются без обработки
	other := &Delivery{Message: Message{Type: MessageTypeExecutionTask}}
	if err := handle(ctx, other); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(sink.reports) != 1 {
		t.Error("task message must not reach the sink")
	}

	sink.err = errors.New("database unavailable")
	if err := handle(ctx, report); err == nil {
		t.Error("expected sink error to propagate for requeue")
	}
}

func TestRoutingKeyFor(t *testing.T) {
	key, err := routingKeyFor(string(QueueManagement))
	if err != nil || key != RoutingKeyManagement {
		t.Errorf("routingKeyFor(management) = %q, %v", key, err)
	}
	if _, err := routingKeyFor("unknown"); err == nil {
		t.Error("expected error for unknown queue")
	}
}

func TestParsePayload(t *testing.T) {
	msg := &Message{Payload: domain.ExecutionReport{ExecutionID: "e1", Status: domain.ExecutionStatusFailed, Error: "boom"}}

	got, err := ParsePayload[domain.ExecutionReport](msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ExecutionID != "e1" || got.Status != domain.ExecutionStatusFailed || got.Error != "boom" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestNewConsumer_Defaults(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{Queue: QueueExecutionsCompleted})

	if c.queue != QueueExecutionsCompleted {
		t.Errorf("queue = %q, want %q", c.queue, QueueExecutionsCompleted)
	}
	if c.prefetch != 1 {
		t.Errorf("prefetch = %d, want 1", c.prefetch)
	}
	if c.logger == nil {
		t.Error("expected default logger")
	}
}
