package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// ParseCampaignStatus converts a stored value into a known status.
func ParseCampaignStatus(value string) (CampaignStatus, error) {
	switch s := CampaignStatus(value); s {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused, CampaignStatusCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown campaign status %q", value)
	}
}

// Campaign models an outbound calling campaign as seen by the dispatcher.
type Campaign struct {
	ID                 uuid.UUID
	OrgID              uuid.UUID
	Name               string
	Status             CampaignStatus
	DailyCallLimit     int
	MaxRetries         int
	RetryIntervalHours int
	TimeZone           string
	AgentID            *uuid.UUID
	Schedule           []ScheduleWindow
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RetryInterval is the minimum gap between two attempts on the same lead.
func (c *Campaign) RetryInterval() time.Duration {
	if c.RetryIntervalHours <= 0 {
		return 0
	}
	return time.Duration(c.RetryIntervalHours) * time.Hour
}

// ScheduleWindow captures the calling slots configured for one day of the week.
type ScheduleWindow struct {
	DayOfWeek time.Weekday
	Enabled   bool
	Slots     []TimeSlot
}

// TimeSlot is a wall-clock interval in HH:MM form, start inclusive, end exclusive.
type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AgentStatus enumerates voice agent states.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// VoiceAgent is the AI agent a campaign dials with.
type VoiceAgent struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	Name            string
	Status          AgentStatus
	ProviderAgentID string
}

// Active reports whether the agent is enabled locally.
func (a *VoiceAgent) Active() bool {
	return a.Status == AgentStatusActive
}

// Provisioned reports whether the agent exists at the voice provider.
func (a *VoiceAgent) Provisioned() bool {
	return a.ProviderAgentID != ""
}

// Organization is the tenant boundary.
type Organization struct {
	ID       uuid.UUID
	Name     string
	TimeZone string
}

// Call is a historical dial attempt. Outcome stays nil while the call is in flight.
type Call struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	CampaignID uuid.UUID
	StartedAt  time.Time
	Outcome    *string
}
