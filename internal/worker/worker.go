package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/worker/processors"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the worker consumes.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Worker struct {
	logger    *logger.Logger
	reader    Reader
	processor *processors.EventProcessor
}

func NewReader(cfg *config.Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers(),
		GroupID:        cfg.KafkaGroupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})
}

func New(reader Reader, processor *processors.EventProcessor, logger *logger.Logger) *Worker {
	return &Worker{
		logger:    logger,
		reader:    reader,
		processor: processor,
	}
}

// Start consumes events until ctx is done. A message is committed once it
// was handled, whether or not the run succeeded, so a failing run is not
// replayed forever.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started, listening for events...")

	for {
		message, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("Failed to read message: %v", err)
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		w.logger.Debug("Received message: %s", string(message.Value))
		w.handle(ctx, message.Value)

		if err := w.reader.CommitMessages(context.WithoutCancel(ctx), message); err != nil {
			w.logger.Error("Failed to commit message at offset %d: %v", message.Offset, err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, value []byte) {
	var event events.Event
	if err := json.Unmarshal(value, &event); err != nil {
		w.logger.Error("Failed to parse event: %v", err)
		return
	}

	if err := w.processor.Process(ctx, event); err != nil {
		w.logger.Error("Failed to process %s event: %v", event.Type, err)
		return
	}
	w.logger.Debug("Event processed successfully")
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	if err := w.reader.Close(); err != nil {
		w.logger.Warn("Failed to close reader: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
