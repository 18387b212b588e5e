package lead

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// Selector picks the leads of a campaign that may be dialed right now.
type Selector struct {
	leads repository.LeadRepository
}

// NewSelector constructs a selector.
func NewSelector(leads repository.LeadRepository) *Selector {
	return &Selector{leads: leads}
}

// SelectEligibleLeads returns at most limit leads callable at now, fewest
// retries first and oldest first within equal retry counts.
func (s *Selector) SelectEligibleLeads(ctx context.Context, campaign *domain.Campaign, limit int, now time.Time) ([]domain.LeadToCall, error) {
	if limit <= 0 {
		return nil, nil
	}

	now = now.UTC()
	interval := campaign.RetryInterval()

	candidates, err := s.leads.ListCandidates(ctx, campaign.ID, repository.LeadFilter{
		MaxRetries:     campaign.MaxRetries,
		ActivityBefore: now.Add(-interval),
		Limit:          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("lead selector: campaign %s: %w", campaign.ID, err)
	}

	eligible := make([]domain.LeadCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.Lead.Callable(campaign.MaxRetries, interval, now) || !c.Contact.Dialable() {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i].Lead, eligible[j].Lead
		if a.RetryCount != b.RetryCount {
			return a.RetryCount < b.RetryCount
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]domain.LeadToCall, 0, len(eligible))
	for _, c := range eligible {
		out = append(out, domain.LeadToCall{
			LeadID:      c.Lead.ID,
			ContactID:   c.Lead.ContactID,
			Phone:       c.Contact.Phone,
			DisplayName: c.Contact.DisplayName(),
			RetryCount:  c.Lead.RetryCount,
		})
	}
	return out, nil
}
