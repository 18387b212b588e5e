package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/telemetry"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

// ErrTickInProgress is returned when a tick is requested while one is running in this process.
var ErrTickInProgress = fmt.Errorf("%w: dispatch tick already running", apperrors.ErrConflict)

// Ticker runs one dispatch cycle.
type Ticker interface {
	Tick(ctx context.Context) (*domain.DispatchResult, error)
}

// BatchPublisher hands batches to call placement.
type BatchPublisher interface {
	Publish(ctx context.Context, tickID uuid.UUID, batches []domain.DispatchBatch) (int, error)
}

// SummaryWriter persists the digest of a tick.
type SummaryWriter interface {
	Save(ctx context.Context, summary domain.TickSummary) error
}

// Runner executes ticks one at a time and records their side effects.
// Publisher, Summaries and Metrics are optional.
type Runner struct {
	ticker    Ticker
	publisher BatchPublisher
	summaries SummaryWriter
	metrics   *telemetry.Metrics
	logger    *zap.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewRunner constructs a runner.
func NewRunner(ticker Ticker, publisher BatchPublisher, summaries SummaryWriter, metrics *telemetry.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ticker:    ticker,
		publisher: publisher,
		summaries: summaries,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce executes a tick unless one is already running, in which case it
// returns ErrTickInProgress without waiting.
func (r *Runner) RunOnce(ctx context.Context) (*domain.DispatchResult, error) {
	if !r.mu.TryLock() {
		r.metrics.TickDropped()
		return nil, ErrTickInProgress
	}
	defer r.mu.Unlock()

	start := r.now()
	result, err := r.ticker.Tick(ctx)
	r.metrics.ObserveTick(result, r.now().Sub(start))
	if err != nil {
		return nil, err
	}

	if r.publisher != nil && len(result.Batches) > 0 {
		published, err := r.publisher.Publish(ctx, result.TickID, result.Batches)
		r.metrics.BatchesPublished(published, len(result.Batches)-published)
		if err != nil {
			r.logger.Error("scheduler: publish batches",
				zap.String("tick_id", result.TickID.String()),
				zap.Int("published", published),
				zap.Int("batches", len(result.Batches)),
				zap.Error(err))
		}
	}

	if r.summaries != nil {
		if err := r.summaries.Save(ctx, result.Summary()); err != nil {
			r.logger.Warn("scheduler: save tick summary", zap.Error(err))
		}
	}

	return result, nil
}
