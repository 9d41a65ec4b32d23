// Package events publishes domain events (request approved, stock changed,
// audited writes) to an outbound feed. Nothing in the service consumes them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Event types emitted by the domain services.
const (
	TypeStockChanged        = "stock.changed"
	TypeBankRequestCreated  = "bank_request.created"
	TypeBankRequestApproved = "bank_request.approved"
	TypeBankRequestRejected = "bank_request.rejected"
	TypeDonationAccepted    = "donation.accepted"
	TypeDonationCompleted   = "donation.completed"
	TypeDriveRegistered     = "drive.registered"
	TypeAuditAccess         = "audit.access"
)

// Event is the envelope written to the feed.
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	ActorID      string          `json:"actor_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// New builds an event, marshalling payload when non-nil.
func New(typ, resourceType, resourceID, actorID string, payload interface{}) (Event, error) {
	ev := Event{
		ID:           uuid.NewString(),
		Type:         typ,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		ActorID:      actorID,
		Timestamp:    time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Publisher delivers events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error { return nil }

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by resource id, so all
// events of one resource land on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher connects a writer to brokers for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	})
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		key := ev.ResourceID
		if key == "" {
			key = ev.ID
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
			},
			Time: ev.Timestamp,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d event(s): %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Emitter is the best-effort front used by services: failures are logged and
// never returned to the caller.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
	filter []string
}

// NewEmitter wraps pub. A nil pub behaves like NopPublisher. Patterns restrict
// which event types are forwarded ("bank_request.*", "*"); none means all.
func NewEmitter(pub Publisher, logger zerolog.Logger, patterns ...string) *Emitter {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Emitter{pub: pub, logger: logger, filter: patterns}
}

// Emit builds and publishes one event.
func (e *Emitter) Emit(ctx context.Context, typ, resourceType, resourceID, actorID string, payload interface{}) {
	if e == nil || !e.wants(typ) {
		return
	}
	ev, err := New(typ, resourceType, resourceID, actorID, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event", typ).Msg("build event")
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("event", typ).Str("resource_id", resourceID).Msg("publish event failed")
	}
}

func (e *Emitter) wants(typ string) bool {
	if len(e.filter) == 0 {
		return true
	}
	for _, p := range e.filter {
		if Matches(p, typ) {
			return true
		}
	}
	return false
}

// Close flushes and closes the underlying publisher.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	return e.pub.Close()
}

// Matches reports whether eventType matches pattern. "*" matches everything,
// "prefix.*" matches any type under prefix and "*.action" any type ending
// in action.
func Matches(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(eventType, pattern[1:])
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
