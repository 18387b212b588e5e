package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/acme/campaign-dispatch/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the publishers use.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchPublisher publishes dispatch batches, keyed by campaign id.
type BatchPublisher struct {
	writer MessageWriter
	now    func() time.Time
}

// NewBatchPublisher constructs a publisher for the given topic.
func NewBatchPublisher(k *Kafka, topic string) *BatchPublisher {
	return NewBatchPublisherWithWriter(k.NewWriter(topic))
}

// NewBatchPublisherWithWriter wraps an existing writer.
func NewBatchPublisherWithWriter(w MessageWriter) *BatchPublisher {
	return &BatchPublisher{writer: w, now: time.Now}
}

// Publish writes each batch as its own message. A failing batch does not stop
// the others; the returned error joins every failure.
func (p *BatchPublisher) Publish(ctx context.Context, tickID uuid.UUID, batches []domain.DispatchBatch) (int, error) {
	var (
		published int
		errs      []error
	)
	now := p.now()
	for _, b := range batches {
		value, err := json.Marshal(NewBatchMessage(tickID, b, now))
		if err != nil {
			errs = append(errs, fmt.Errorf("batch publisher: marshal campaign %s: %w", b.CampaignID, err))
			continue
		}
		record := kafka.Message{
			Key:   []byte(b.CampaignID.String()),
			Value: value,
			Time:  now.UTC(),
		}
		if err := p.writer.WriteMessages(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("batch publisher: campaign %s: %w", b.CampaignID, err))
			continue
		}
		published++
	}
	return published, errors.Join(errs...)
}

// Close closes the underlying writer.
func (p *BatchPublisher) Close() error {
	return p.writer.Close()
}
