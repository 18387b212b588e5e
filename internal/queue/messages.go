package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
)

// BatchMessage hands one campaign's selected leads to the call placement consumer.
type BatchMessage struct {
	TickID          uuid.UUID           `json:"tick_id"`
	CampaignID      uuid.UUID           `json:"campaign_id"`
	CampaignName    string              `json:"campaign_name"`
	OrgID           uuid.UUID           `json:"org_id"`
	AgentID         uuid.UUID           `json:"agent_id"`
	ProviderAgentID string              `json:"provider_agent_id"`
	Leads           []domain.LeadToCall `json:"leads"`
	DispatchedAt    time.Time           `json:"dispatched_at"`
}

// NewBatchMessage wraps a dispatch batch.
func NewBatchMessage(tickID uuid.UUID, batch domain.DispatchBatch, at time.Time) BatchMessage {
	return BatchMessage{
		TickID:          tickID,
		CampaignID:      batch.CampaignID,
		CampaignName:    batch.CampaignName,
		OrgID:           batch.OrgID,
		AgentID:         batch.AgentID,
		ProviderAgentID: batch.ProviderAgentID,
		Leads:           batch.Leads,
		DispatchedAt:    at.UTC(),
	}
}

// CallEventType distinguishes call lifecycle events.
type CallEventType string

const (
	CallEventStarted CallEventType = "call.started"
	CallEventEnded   CallEventType = "call.ended"
)

// CallEventMessage is emitted by the call placement side when a call starts or ends.
type CallEventMessage struct {
	Type       CallEventType `json:"type"`
	CallID     uuid.UUID     `json:"call_id"`
	OrgID      uuid.UUID     `json:"org_id"`
	CampaignID uuid.UUID     `json:"campaign_id"`
	LeadID     uuid.UUID     `json:"lead_id"`
	StartedAt  time.Time     `json:"started_at"`
	Outcome    string        `json:"outcome,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Validate checks the fields every consumer relies on.
func (m CallEventMessage) Validate() error {
	switch m.Type {
	case CallEventStarted, CallEventEnded:
	default:
		return fmt.Errorf("call event: unknown type %q", m.Type)
	}
	if m.CallID == uuid.Nil || m.OrgID == uuid.Nil || m.CampaignID == uuid.Nil {
		return fmt.Errorf("call event: call_id, org_id and campaign_id are required")
	}
	if m.StartedAt.IsZero() {
		return fmt.Errorf("call event: started_at is required")
	}
	if m.Type == CallEventEnded && m.Outcome == "" {
		return fmt.Errorf("call event: outcome is required on %s", CallEventEnded)
	}
	return nil
}

// Call converts the event into a call record.
func (m CallEventMessage) Call() domain.Call {
	call := domain.Call{
		ID:         m.CallID,
		OrgID:      m.OrgID,
		CampaignID: m.CampaignID,
		StartedAt:  m.StartedAt.UTC(),
	}
	if m.Outcome != "" {
		outcome := m.Outcome
		call.Outcome = &outcome
	}
	return call
}
