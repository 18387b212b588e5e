package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignCursor is the position of a campaign in listing order
// (org_id, created_at, id). A page starts strictly after it.
type CampaignCursor struct {
	OrgID     uuid.UUID
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorAt returns the cursor positioned on c.
func CursorAt(c *domain.Campaign) *CampaignCursor {
	return &CampaignCursor{OrgID: c.OrgID, CreatedAt: c.CreatedAt, ID: c.ID}
}

// CampaignRepository reads campaign definitions and their calling schedules.
type CampaignRepository interface {
	// ListActive returns one page of active campaigns in listing order,
	// starting after the cursor (nil for the first page).
	ListActive(ctx context.Context, after *CampaignCursor, limit int) ([]*domain.Campaign, error)
	// ListSchedule fails when a stored schedule cannot be decoded.
	ListSchedule(ctx context.Context, campaignID uuid.UUID) ([]domain.ScheduleWindow, error)
}

// LeadFilter narrows a candidate query to leads the dispatcher may call.
type LeadFilter struct {
	MaxRetries     int
	ActivityBefore time.Time
	Limit          int
}

// LeadRepository reads call candidates and retires exhausted leads.
type LeadRepository interface {
	// ListCandidates returns leads joined with their contacts, ordered by
	// retry_count then created_at.
	ListCandidates(ctx context.Context, campaignID uuid.UUID, filter LeadFilter) ([]domain.LeadCandidate, error)
	// MarkExhausted moves dialable leads with retry_count >= maxRetries to bad_lead.
	MarkExhausted(ctx context.Context, campaignID uuid.UUID, maxRetries int, now time.Time) (int, error)
}

// AgentRepository resolves voice agents.
type AgentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.VoiceAgent, error)
}

// OrganizationRepository resolves tenants.
type OrganizationRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error)
}

// AppointmentRepository lists bookings that occupy time.
type AppointmentRepository interface {
	// ListOccupying returns non-cancelled appointments starting in [from, to).
	ListOccupying(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
}

// CallStore counts historical call attempts.
type CallStore interface {
	// CountInFlight counts calls of the org started at or after since with no outcome yet.
	CountInFlight(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error)
	// CountStartedSince counts calls of the campaign started at or after since.
	CountStartedSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int, error)
}
