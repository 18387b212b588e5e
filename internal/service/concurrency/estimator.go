package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/repository"
)

// ActiveCallEstimator reports how many calls an organization currently has in flight.
type ActiveCallEstimator interface {
	ActiveCalls(ctx context.Context, orgID uuid.UUID) (int, error)
}

// HeuristicEstimator counts calls started within the active window that have
// not recorded an outcome. Calls that never report an outcome stop counting
// once they age out of the window, and calls running longer than the window
// are missed.
type HeuristicEstimator struct {
	calls  repository.CallStore
	window time.Duration
	now    func() time.Time
}

// NewHeuristicEstimator constructs the estimator. A non-positive window defaults to 10 minutes.
func NewHeuristicEstimator(calls repository.CallStore, window time.Duration) *HeuristicEstimator {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &HeuristicEstimator{calls: calls, window: window, now: time.Now}
}

// ActiveCalls implements ActiveCallEstimator.
func (e *HeuristicEstimator) ActiveCalls(ctx context.Context, orgID uuid.UUID) (int, error) {
	since := e.now().UTC().Add(-e.window)
	n, err := e.calls.CountInFlight(ctx, orgID, since)
	if err != nil {
		return 0, fmt.Errorf("heuristic estimator: %w", err)
	}
	return n, nil
}
