// Package events publishes cache invalidation signals for other services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// InvalidationEvent tells consumers which read views of an organization
// changed.
type InvalidationEvent struct {
	OrganizationID string    `json:"organization_id"`
	Resources      []string  `json:"resources"`
	At             time.Time `json:"at"`
}

// Publisher emits invalidation events.
type Publisher interface {
	PublishInvalidation(ctx context.Context, ev InvalidationEvent) error
	Close() error
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by organization, so
// events of one organization stay ordered.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// NewPublisherWithWriter creates a publisher on an existing writer.
func NewPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) PublishInvalidation(ctx context.Context, ev InvalidationEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding invalidation event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrganizationID),
		Value: value,
		Time:  ev.At,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cache.invalidated")},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing invalidation event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishInvalidation(context.Context, InvalidationEvent) error { return nil }
func (Nop) Close() error                                                 { return nil }
