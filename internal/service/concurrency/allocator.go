package concurrency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultMaxOrgConcurrency caps simultaneous calls per organization.
const DefaultMaxOrgConcurrency = 8

// Allocator converts an active call estimate into remaining capacity.
type Allocator struct {
	estimator ActiveCallEstimator
	maxPerOrg int
}

// NewAllocator constructs an allocator. A non-positive cap uses DefaultMaxOrgConcurrency.
func NewAllocator(estimator ActiveCallEstimator, maxPerOrg int) *Allocator {
	if maxPerOrg <= 0 {
		maxPerOrg = DefaultMaxOrgConcurrency
	}
	return &Allocator{estimator: estimator, maxPerOrg: maxPerOrg}
}

// MaxPerOrg returns the configured cap.
func (a *Allocator) MaxPerOrg() int {
	return a.maxPerOrg
}

// RemainingOrgSlots returns how many calls the organization may still start, floored at zero.
func (a *Allocator) RemainingOrgSlots(ctx context.Context, orgID uuid.UUID) (int, error) {
	active, err := a.estimator.ActiveCalls(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("allocator: org %s: %w", orgID, err)
	}
	remaining := a.maxPerOrg - active
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
