package domain

import (
	"time"

	"github.com/google/uuid"
)

// SkipReason explains why a campaign contributed no batch in a tick.
type SkipReason string

const (
	SkipOrgAtMaxConcurrency   SkipReason = "organization at max concurrency"
	SkipOrgConcurrencyFailed  SkipReason = "organization concurrency check failed"
	SkipOrgTickInProgress     SkipReason = "organization tick in progress"
	SkipOrgLeaseFailed        SkipReason = "organization lease unavailable"
	SkipOutsideWindow         SkipReason = "outside calling window"
	SkipScheduleUnavailable   SkipReason = "schedule lookup failed"
	SkipDailyLimitReached     SkipReason = "daily call limit reached"
	SkipDailyCountFailed      SkipReason = "daily call count failed"
	SkipNoAgent               SkipReason = "no voice agent assigned"
	SkipAgentNotFound         SkipReason = "voice agent not found"
	SkipAgentLookupFailed     SkipReason = "voice agent lookup failed"
	SkipAgentInactive         SkipReason = "voice agent inactive"
	SkipAgentNotProvisioned   SkipReason = "voice agent not provisioned"
	SkipVoiceProviderDegraded SkipReason = "voice provider status unavailable"
	SkipLeadQueryFailed       SkipReason = "lead query failed"
	SkipNoEligibleLeads       SkipReason = "no eligible leads"
)

// DispatchBatch is the set of leads selected for one campaign in one tick.
type DispatchBatch struct {
	CampaignID      uuid.UUID    `json:"campaign_id"`
	CampaignName    string       `json:"campaign_name"`
	OrgID           uuid.UUID    `json:"org_id"`
	AgentID         uuid.UUID    `json:"agent_id"`
	ProviderAgentID string       `json:"provider_agent_id"`
	Leads           []LeadToCall `json:"leads"`
}

// SkippedCampaign records a campaign left out of a tick.
type SkippedCampaign struct {
	CampaignID uuid.UUID  `json:"campaign_id"`
	Reason     SkipReason `json:"reason"`
}

// DispatchResult is the outcome of one tick.
type DispatchResult struct {
	TickID     uuid.UUID         `json:"tick_id"`
	StartedAt  time.Time         `json:"started_at"`
	Batches    []DispatchBatch   `json:"batches"`
	TotalLeads int               `json:"total_leads"`
	Skipped    []SkippedCampaign `json:"skipped"`
	Swept      int               `json:"swept"`
}

// TickSummary is the persisted digest of the most recent tick.
type TickSummary struct {
	TickID     uuid.UUID `json:"tick_id"`
	Time       time.Time `json:"time"`
	Batches    int       `json:"batches"`
	TotalLeads int       `json:"total_leads"`
	Skipped    int       `json:"skipped"`
	Swept      int       `json:"swept"`
	Ticks      int64     `json:"ticks"`
}

// Summary digests a tick result.
func (r *DispatchResult) Summary() TickSummary {
	return TickSummary{
		TickID:     r.TickID,
		Time:       r.StartedAt,
		Batches:    len(r.Batches),
		TotalLeads: r.TotalLeads,
		Skipped:    len(r.Skipped),
		Swept:      r.Swept,
	}
}
