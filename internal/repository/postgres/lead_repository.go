package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// LeadRepository reads dispatch candidates and retires exhausted leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// candidatesQuery mirrors Lead.Callable and Contact.Dialable so the LIMIT
// applies to rows the selector will keep.
const candidatesQuery = `SELECT l.id, l.org_id, l.campaign_id, l.contact_id, l.status, l.retry_count,
			l.last_activity_at, l.created_at, l.updated_at,
			c.first_name, c.last_name, c.phone, c.is_dnc
		FROM leads l
		JOIN contacts c ON c.id = l.contact_id
		WHERE l.campaign_id = ?
		  AND l.status IN (?)
		  AND l.retry_count < ?
		  AND (l.last_activity_at IS NULL OR l.last_activity_at < ?)
		  AND c.is_dnc = FALSE
		  AND btrim(COALESCE(c.phone, ''), E' \t\n\r\f\v') <> ''
		ORDER BY l.retry_count ASC, l.created_at ASC, l.id ASC
		LIMIT ?`

// ListCandidates fetches callable leads of a campaign joined with their contacts.
func (r *LeadRepository) ListCandidates(ctx context.Context, campaignID uuid.UUID, filter repository.LeadFilter) ([]domain.LeadCandidate, error) {
	if filter.Limit <= 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(candidatesQuery,
		campaignID, dialableStatuses(), filter.MaxRetries, filter.ActivityBefore, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("leads: build candidate query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("leads: select candidates: %w", err)
	}
	defer rows.Close()

	var results []domain.LeadCandidate
	for rows.Next() {
		var rec candidateRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		candidate, err := rec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("leads: lead %s: %w", rec.ID, err)
		}
		results = append(results, candidate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows err: %w", err)
	}

	return results, nil
}

// MarkExhausted moves dialable leads that used up their retries to bad_lead.
func (r *LeadRepository) MarkExhausted(ctx context.Context, campaignID uuid.UUID, maxRetries int, now time.Time) (int, error) {
	query, args, err := sqlx.In(`UPDATE leads SET status = ?, updated_at = ?
		WHERE campaign_id = ? AND status IN (?) AND retry_count >= ?`,
		domain.LeadStatusBadLead, now, campaignID, dialableStatuses(), maxRetries)
	if err != nil {
		return 0, fmt.Errorf("leads: build sweep query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("leads: mark exhausted: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("leads: rows affected: %w", err)
	}
	return int(n), nil
}

func dialableStatuses() []string {
	statuses := make([]string, 0, len(domain.DialableLeadStatuses))
	for _, s := range domain.DialableLeadStatuses {
		statuses = append(statuses, string(s))
	}
	return statuses
}

type candidateRecord struct {
	ID             uuid.UUID      `db:"id"`
	OrgID          uuid.UUID      `db:"org_id"`
	CampaignID     uuid.UUID      `db:"campaign_id"`
	ContactID      uuid.UUID      `db:"contact_id"`
	Status         string         `db:"status"`
	RetryCount     int            `db:"retry_count"`
	LastActivityAt sql.NullTime   `db:"last_activity_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
	FirstName      sql.NullString `db:"first_name"`
	LastName       sql.NullString `db:"last_name"`
	Phone          sql.NullString `db:"phone"`
	IsDNC          bool           `db:"is_dnc"`
}

func (r candidateRecord) toDomain() (domain.LeadCandidate, error) {
	status, err := domain.ParseLeadStatus(r.Status)
	if err != nil {
		return domain.LeadCandidate{}, err
	}

	lead := domain.Lead{
		ID:         r.ID,
		OrgID:      r.OrgID,
		CampaignID: r.CampaignID,
		ContactID:  r.ContactID,
		Status:     status,
		RetryCount: r.RetryCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt.Time,
	}
	if r.LastActivityAt.Valid {
		t := r.LastActivityAt.Time
		lead.LastActivityAt = &t
	}

	return domain.LeadCandidate{
		Lead: lead,
		Contact: &domain.Contact{
			ID:        r.ContactID,
			OrgID:     r.OrgID,
			FirstName: r.FirstName.String,
			LastName:  r.LastName.String,
			Phone:     r.Phone.String,
			IsDNC:     r.IsDNC,
		},
	}, nil
}
