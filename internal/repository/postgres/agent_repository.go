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

// AgentRepository reads voice agents.
type AgentRepository struct {
	db *sqlx.DB
}

// NewAgentRepository constructs the repository.
func NewAgentRepository(db *sqlx.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Get fetches an agent by id.
func (r *AgentRepository) Get(ctx context.Context, id uuid.UUID) (*domain.VoiceAgent, error) {
	var rec struct {
		ID              uuid.UUID      `db:"id"`
		OrgID           uuid.UUID      `db:"org_id"`
		Name            string         `db:"name"`
		Status          string         `db:"status"`
		ProviderAgentID sql.NullString `db:"provider_agent_id"`
	}

	err := r.db.QueryRowxContext(ctx, `SELECT id, org_id, name, status, provider_agent_id
		FROM voice_agents WHERE id = $1`, id).StructScan(&rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("agent repo: get: %w", err)
	}

	return &domain.VoiceAgent{
		ID:              rec.ID,
		OrgID:           rec.OrgID,
		Name:            rec.Name,
		Status:          domain.AgentStatus(rec.Status),
		ProviderAgentID: rec.ProviderAgentID.String,
	}, nil
}
