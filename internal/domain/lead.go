package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadStatus enumerates the pipeline stages of a lead.
type LeadStatus string

const (
	LeadStatusNew        LeadStatus = "new"
	LeadStatusContacted  LeadStatus = "contacted"
	LeadStatusInterested LeadStatus = "interested"
	LeadStatusApptSet    LeadStatus = "appt_set"
	LeadStatusShowed     LeadStatus = "showed"
	LeadStatusClosedWon  LeadStatus = "closed_won"
	LeadStatusClosedLost LeadStatus = "closed_lost"
	LeadStatusBadLead    LeadStatus = "bad_lead"
)

// DialableLeadStatuses are the only statuses the dispatcher ever selects or retires.
var DialableLeadStatuses = []LeadStatus{LeadStatusNew, LeadStatusContacted}

// ParseLeadStatus converts a stored value into a known status.
func ParseLeadStatus(value string) (LeadStatus, error) {
	switch s := LeadStatus(value); s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusInterested, LeadStatusApptSet,
		LeadStatusShowed, LeadStatusClosedWon, LeadStatusClosedLost, LeadStatusBadLead:
		return s, nil
	default:
		return "", fmt.Errorf("unknown lead status %q", value)
	}
}

// Dialable reports whether a lead in this status may still be called.
func (s LeadStatus) Dialable() bool {
	return s == LeadStatusNew || s == LeadStatusContacted
}

// Lead is a contact's participation in one campaign.
type Lead struct {
	ID             uuid.UUID
	OrgID          uuid.UUID
	CampaignID     uuid.UUID
	ContactID      uuid.UUID
	Status         LeadStatus
	RetryCount     int
	LastActivityAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Exhausted reports whether the lead used up its retry budget while still dialable.
func (l *Lead) Exhausted(maxRetries int) bool {
	return l.Status.Dialable() && l.RetryCount >= maxRetries
}

// Callable reports whether the lead's own state allows a dial at now.
// Contact checks live on Contact.Dialable.
func (l *Lead) Callable(maxRetries int, retryInterval time.Duration, now time.Time) bool {
	if !l.Status.Dialable() || l.RetryCount >= maxRetries {
		return false
	}
	if l.LastActivityAt == nil {
		return true
	}
	return l.LastActivityAt.Before(now.Add(-retryInterval))
}

// Retire moves an exhausted lead to bad_lead.
func (l *Lead) Retire(maxRetries int, now time.Time) bool {
	if !l.Exhausted(maxRetries) {
		return false
	}
	l.Status = LeadStatusBadLead
	l.UpdatedAt = now
	return true
}

// Contact is the person behind a lead.
type Contact struct {
	ID        uuid.UUID
	OrgID     uuid.UUID
	FirstName string
	LastName  string
	Phone     string
	IsDNC     bool
}

// Dialable reports whether the contact can legally and practically be called.
func (c *Contact) Dialable() bool {
	return c != nil && strings.TrimSpace(c.Phone) != "" && !c.IsDNC
}

// DisplayName joins the contact's names.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// LeadCandidate is a lead joined with its contact, as read for selection.
type LeadCandidate struct {
	Lead    Lead
	Contact *Contact
}

// LeadToCall is one entry of a dispatch batch.
type LeadToCall struct {
	LeadID      uuid.UUID `json:"lead_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	Phone       string    `json:"contact_phone"`
	DisplayName string    `json:"contact_name"`
	RetryCount  int       `json:"retry_count"`
}
