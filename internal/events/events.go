package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TypeSyncRequested = "sync.requested"
	TypeSyncCompleted = "sync.completed"
	TypeSyncFailed    = "sync.failed"
)

type Event struct {
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id,omitempty"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// SyncRequest is the payload of a sync.requested event.
type SyncRequest struct {
	Full         bool `json:"full"`
	SkipDeletion bool `json:"skip_deletion"`
	BatchSize    int  `json:"batch_size"`
}

func NewSyncRequested(req SyncRequest) Event {
	return Event{
		Type: TypeSyncRequested,
		Data: map[string]interface{}{
			"full":          req.Full,
			"skip_deletion": req.SkipDeletion,
			"batch_size":    req.BatchSize,
		},
		Timestamp: time.Now().UTC(),
	}
}

// Request decodes the sync options carried by a sync.requested event.
func (e Event) Request() (SyncRequest, error) {
	var req SyncRequest
	if e.Data == nil {
		return req, nil
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid sync request: %w", err)
	}
	return req, nil
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher returns a Kafka publisher, or nil when no broker is
// configured.
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return NewKafkaPublisher(brokers, topic)
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.Type), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Recorder keeps published events in memory. Used when no broker is
// configured and in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
