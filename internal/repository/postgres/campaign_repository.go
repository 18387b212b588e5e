package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using PostgreSQL.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const activeCampaignColumns = `SELECT id, org_id, name, status, daily_call_limit, max_retries,
		retry_interval_hours, timezone, agent_id, created_at, updated_at
		FROM campaigns`

// ListActive returns one keyset page of active campaigns ordered by
// organization, then creation, then id.
func (r *CampaignRepository) ListActive(ctx context.Context, after *repository.CampaignCursor, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 500
	}

	query, args := activeCampaignsQuery(after, limit)
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list active: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign, err := record.toDomain()
		if err != nil {
			return nil, fmt.Errorf("campaign repo: campaign %s: %w", record.ID, err)
		}
		results = append(results, &campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

func activeCampaignsQuery(after *repository.CampaignCursor, limit int) (string, []interface{}) {
	if after == nil {
		return activeCampaignColumns + ` WHERE status = $1
		ORDER BY org_id ASC, created_at ASC, id ASC LIMIT $2`,
			[]interface{}{domain.CampaignStatusActive, limit}
	}
	return activeCampaignColumns + ` WHERE status = $1 AND (org_id, created_at, id) > ($2, $3, $4)
		ORDER BY org_id ASC, created_at ASC, id ASC LIMIT $5`,
		[]interface{}{domain.CampaignStatusActive, after.OrgID, after.CreatedAt, after.ID, limit}
}

// ListSchedule retrieves the per-day calling windows of a campaign.
func (r *CampaignRepository) ListSchedule(ctx context.Context, campaignID uuid.UUID) ([]domain.ScheduleWindow, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT day_of_week, enabled, slots
		FROM campaign_schedules WHERE campaign_id = $1 ORDER BY day_of_week`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign schedule: query: %w", err)
	}
	defer rows.Close()

	var windows []domain.ScheduleWindow
	for rows.Next() {
		var row scheduleRecord
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("campaign schedule: scan: %w", err)
		}
		window, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("campaign schedule: campaign %s: %w", campaignID, err)
		}
		windows = append(windows, window)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign schedule: rows err: %w", err)
	}

	return windows, nil
}

type campaignRecord struct {
	ID                 uuid.UUID      `db:"id"`
	OrgID              uuid.UUID      `db:"org_id"`
	Name               string         `db:"name"`
	Status             string         `db:"status"`
	DailyCallLimit     int            `db:"daily_call_limit"`
	MaxRetries         int            `db:"max_retries"`
	RetryIntervalHours int            `db:"retry_interval_hours"`
	TimeZone           sql.NullString `db:"timezone"`
	AgentID            uuid.NullUUID  `db:"agent_id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          sql.NullTime   `db:"updated_at"`
}

func (r campaignRecord) toDomain() (domain.Campaign, error) {
	status, err := domain.ParseCampaignStatus(r.Status)
	if err != nil {
		return domain.Campaign{}, err
	}

	campaign := domain.Campaign{
		ID:                 r.ID,
		OrgID:              r.OrgID,
		Name:               r.Name,
		Status:             status,
		DailyCallLimit:     r.DailyCallLimit,
		MaxRetries:         r.MaxRetries,
		RetryIntervalHours: r.RetryIntervalHours,
		TimeZone:           r.TimeZone.String,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt.Time,
	}
	if r.AgentID.Valid {
		id := r.AgentID.UUID
		campaign.AgentID = &id
	}
	return campaign, nil
}

type scheduleRecord struct {
	Day     int    `db:"day_of_week"`
	Enabled bool   `db:"enabled"`
	Slots   []byte `db:"slots"`
}

// toDomain decodes the slot JSON. NULL slots mean no windows that day.
func (r scheduleRecord) toDomain() (domain.ScheduleWindow, error) {
	var slots []domain.TimeSlot
	if len(r.Slots) > 0 {
		if err := json.Unmarshal(r.Slots, &slots); err != nil {
			return domain.ScheduleWindow{}, fmt.Errorf("day %d: decode slots: %w", r.Day, err)
		}
	}
	return domain.ScheduleWindow{
		DayOfWeek: time.Weekday(r.Day),
		Enabled:   r.Enabled,
		Slots:     slots,
	}, nil
}
