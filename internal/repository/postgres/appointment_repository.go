package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dispatch/internal/domain"
)

// AppointmentRepository reads appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// ListOccupying returns non-cancelled appointments of the org starting in [from, to).
func (r *AppointmentRepository) ListOccupying(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, org_id, scheduled_at, duration_minutes, status
		FROM appointments
		WHERE org_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3 AND status <> $4
		ORDER BY scheduled_at ASC`,
		orgID, from, to, domain.AppointmentStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("appointments: query: %w", err)
	}
	defer rows.Close()

	var results []domain.Appointment
	for rows.Next() {
		var rec struct {
			ID              uuid.UUID `db:"id"`
			OrgID           uuid.UUID `db:"org_id"`
			ScheduledAt     time.Time `db:"scheduled_at"`
			DurationMinutes int       `db:"duration_minutes"`
			Status          string    `db:"status"`
		}
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		results = append(results, domain.Appointment{
			ID:              rec.ID,
			OrgID:           rec.OrgID,
			ScheduledAt:     rec.ScheduledAt,
			DurationMinutes: rec.DurationMinutes,
			Status:          domain.AppointmentStatus(rec.Status),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows err: %w", err)
	}

	return results, nil
}
