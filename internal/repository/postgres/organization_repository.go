package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// OrganizationRepository reads tenants.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Get fetches an organization by id.
func (r *OrganizationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	var rec struct {
		ID       uuid.UUID      `db:"id"`
		Name     string         `db:"name"`
		TimeZone sql.NullString `db:"timezone"`
	}

	err := r.db.QueryRowxContext(ctx, `SELECT id, name, timezone FROM organizations WHERE id = $1`, id).StructScan(&rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("organization repo: get: %w", err)
	}

	return &domain.Organization{ID: rec.ID, Name: rec.Name, TimeZone: rec.TimeZone.String}, nil
}
