// Package events publishes tariff activity (quotes, cart moves, override
// changes) to a Kafka topic for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
)

// Event types.
const (
	TypeQuoted          = "calculation.quoted"
	TypeCompared        = "calculation.compared"
	TypeCartAdded       = "cart.added"
	TypeCartRemoved     = "cart.removed"
	TypeCartCleared     = "cart.cleared"
	TypeOverrideChanged = "override.changed"
)

// Event is one activity record. Events from the same session share a
// partition key so they stay ordered.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// Publisher sends activity events. Publishing is best-effort: callers log
// a failure and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes events as JSON messages to one topic.
type KafkaPublisher struct {
	w     messageWriter
	close func() error
}

// NewKafkaPublisher connects to brokers and writes to topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{w: w, close: w.Close}
}

// NewKafkaPublisherWith wraps an existing writer.
func NewKafkaPublisherWith(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish encodes ev and writes it keyed by session id.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("kafka write: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Type, "ok").Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// Emit publishes ev and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		slog.Warn("event publish failed", "type", ev.Type, "session", ev.SessionID, "err", err)
	}
}

// OverrideNotifier publishes admin override changes as events.
type OverrideNotifier struct {
	Publisher Publisher
	Timeout   time.Duration
}

// OverrideChanged publishes an override.changed event. It blocks for at
// most Timeout.
func (n OverrideNotifier) OverrideChanged(op string, def model.TariffDefinition) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	Emit(ctx, n.Publisher, Event{
		Type:    TypeOverrideChanged,
		Payload: map[string]any{"op": op, "definition": def},
	})
}
