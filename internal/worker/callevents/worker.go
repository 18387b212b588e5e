package callevents

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/app"
	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/queue"
	"github.com/acme/campaign-dispatch/internal/telemetry"
)

// Reader is the subset of a Kafka consumer the worker needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CallRecorder persists call lifecycle records.
type CallRecorder interface {
	RecordStarted(ctx context.Context, call domain.Call) error
	RecordOutcome(ctx context.Context, call domain.Call) error
}

// InFlightCounter tracks live calls per organization.
type InFlightCounter interface {
	Started(ctx context.Context, orgID uuid.UUID) (int, error)
	Ended(ctx context.Context, orgID uuid.UUID) (int, error)
}

// Worker consumes call.started / call.ended events, records them in the call
// store and keeps the per-organization in-flight counter current.
type Worker struct {
	newReader func() Reader
	calls     CallRecorder
	counter   InFlightCounter
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates a worker reading the configured call event topic.
func New(container *app.Container) *Worker {
	cfg := container.Config.Kafka
	return newWorker(
		func() Reader { return container.Kafka.NewReader(cfg.CallEventTopic, cfg.ConsumerGroupID+"-callevents") },
		container.Repositories().Calls,
		container.Services().Counter,
		container.Metrics,
		container.Logger.Named("callevents").Logger,
	)
}

func newWorker(newReader func() Reader, calls CallRecorder, counter InFlightCounter, metrics *telemetry.Metrics, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		newReader: newReader,
		calls:     calls,
		counter:   counter,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("dispatch.callevents"),
	}
}

// Run processes events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	reader := w.newReader()
	defer reader.Close()

	w.logger.Info("call event worker: started")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("call event worker: fetch", zap.Error(err))
			continue
		}

		w.handle(ctx, msg)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("call event worker: commit", zap.Error(err))
		}
	}
}

// handle applies one message. Malformed events are logged and dropped so
// they never block the partition.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) {
	var event queue.CallEventMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Warn("call event worker: unmarshal", zap.Int64("offset", msg.Offset), zap.Error(err))
		w.metrics.CallEvent("unknown", "malformed")
		return
	}
	if err := event.Validate(); err != nil {
		w.logger.Warn("call event worker: invalid event", zap.Int64("offset", msg.Offset), zap.Error(err))
		w.metrics.CallEvent(string(event.Type), "malformed")
		return
	}

	ctx, span := w.tracer.Start(ctx, "call.event", trace.WithAttributes(
		attribute.String("call.id", event.CallID.String()),
		attribute.String("org.id", event.OrgID.String()),
		attribute.String("event.type", string(event.Type)),
	))
	defer span.End()

	logger := w.logger.With(
		zap.String("call_id", event.CallID.String()),
		zap.String("org_id", event.OrgID.String()),
		zap.String("type", string(event.Type)),
	)

	call := event.Call()
	var err error
	switch event.Type {
	case queue.CallEventStarted:
		err = w.calls.RecordStarted(ctx, call)
	case queue.CallEventEnded:
		err = w.calls.RecordOutcome(ctx, call)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record call")
		logger.Error("call event worker: record call", zap.Error(err))
		w.metrics.CallEvent(string(event.Type), "error")
		return
	}

	if w.counter != nil {
		if event.Type == queue.CallEventStarted {
			_, err = w.counter.Started(ctx, event.OrgID)
		} else {
			_, err = w.counter.Ended(ctx, event.OrgID)
		}
		if err != nil {
			span.RecordError(err)
			logger.Warn("call event worker: update in-flight counter", zap.Error(err))
		}
	}

	w.metrics.CallEvent(string(event.Type), "ok")
}
