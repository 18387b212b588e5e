package lead

import (
	"context"
	"fmt"
	"time"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// Sweeper retires leads that used up their retry budget.
type Sweeper struct {
	leads repository.LeadRepository
}

// NewSweeper constructs a sweeper.
func NewSweeper(leads repository.LeadRepository) *Sweeper {
	return &Sweeper{leads: leads}
}

// SweepExhausted marks every new or contacted lead with retry_count >= max_retries
// as bad_lead and returns how many changed. Running it again is a no-op.
func (s *Sweeper) SweepExhausted(ctx context.Context, campaign *domain.Campaign, now time.Time) (int, error) {
	n, err := s.leads.MarkExhausted(ctx, campaign.ID, campaign.MaxRetries, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("lead sweeper: campaign %s: %w", campaign.ID, err)
	}
	return n, nil
}
