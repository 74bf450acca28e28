// Package events relays committed outbox rows to the event stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

// Entry is one unpublished outbox row.
type Entry struct {
	ID            int64
	EventType     string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
	CreatedAt     time.Time
	Attempts      int
}

// Message is what goes on the wire.
type Message struct {
	Key       string
	EventType string
	Value     []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Outbox hands unpublished entries to publish in id order. An entry is
// marked published only when publish returns nil; the first failure is
// recorded on its row and ends the batch so later events never overtake it.
type Outbox interface {
	Claim(ctx context.Context, limit int, publish func(Entry) error) (published int, err error)
}

type envelope struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Encode wraps an entry for publishing. Entries of one aggregate share a key
// and therefore a partition.
func Encode(e Entry) (Message, error) {
	value, err := json.Marshal(envelope{
		ID:            e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		CreatedAt:     e.CreatedAt,
	})
	if err != nil {
		return Message{}, fmt.Errorf("encode event %d: %w", e.ID, err)
	}
	return Message{
		Key:       e.AggregateType + ":" + e.AggregateID,
		EventType: e.EventType,
		Value:     value,
	}, nil
}

type Relay struct {
	outbox    Outbox
	publisher Publisher
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewRelay(outbox Outbox, publisher Publisher, batchSize int, logger *zap.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("events"),
	}
}

// RunOnce publishes at most one batch and reports how many entries went out.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "events.relay_batch")
	defer span.End()

	failed := 0
	n, err := r.outbox.Claim(ctx, r.batchSize, func(e Entry) error {
		msg, err := Encode(e)
		if err == nil {
			err = r.publisher.Publish(ctx, msg)
		}
		if err != nil {
			failed++
			r.logger.Warn("event publish failed",
				zap.Int64("event_id", e.ID),
				zap.String("event_type", e.EventType),
				zap.Int("attempts", e.Attempts+1),
				zap.Error(err))
		}
		return err
	})
	r.metrics.ObserveOutbox(n, failed)
	span.SetAttributes(attribute.Int("published", n), attribute.Int("failed", failed))
	if err != nil {
		span.RecordError(err)
		return n, err
	}
	return n, nil
}

// Run drains the outbox every interval until ctx is done. Full batches are
// followed immediately by another one.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("outbox relay failed", zap.Error(err))
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return
		case <-ticker.C:
		}
	}
}
