package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
)

// CallStore reads and projects call history kept in Scylla. Calls are
// partitioned by day (UTC) under both the organization and the campaign.
type CallStore struct {
	session *gocql.Session
	now     func() time.Time
}

// NewCallStore creates a new call store.
func NewCallStore(session *gocql.Session) *CallStore {
	return &CallStore{session: session, now: time.Now}
}

// RecordStarted writes a newly started call into both partitions.
func (s *CallStore) RecordStarted(ctx context.Context, call domain.Call) error {
	bucket := bucketDate(call.StartedAt)
	if err := s.session.Query(`INSERT INTO calls_by_org (org_id, bucket, started_at, call_id, campaign_id, outcome)
		VALUES (?, ?, ?, ?, ?, ?)`,
		call.OrgID.String(), bucket, call.StartedAt, call.ID.String(), call.CampaignID.String(), call.Outcome,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert calls_by_org: %w", err)
	}

	if err := s.session.Query(`INSERT INTO calls_by_campaign (campaign_id, bucket, started_at, call_id, org_id, outcome)
		VALUES (?, ?, ?, ?, ?, ?)`,
		call.CampaignID.String(), bucket, call.StartedAt, call.ID.String(), call.OrgID.String(), call.Outcome,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert calls_by_campaign: %w", err)
	}

	return nil
}

// RecordOutcome sets the outcome of a finished call in both partitions.
func (s *CallStore) RecordOutcome(ctx context.Context, call domain.Call) error {
	if call.Outcome == nil {
		return fmt.Errorf("call store: outcome required for call %s", call.ID)
	}

	bucket := bucketDate(call.StartedAt)
	if err := s.session.Query(`UPDATE calls_by_org SET outcome = ?
		WHERE org_id = ? AND bucket = ? AND started_at = ? AND call_id = ?`,
		*call.Outcome, call.OrgID.String(), bucket, call.StartedAt, call.ID.String(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: update calls_by_org: %w", err)
	}

	if err := s.session.Query(`UPDATE calls_by_campaign SET outcome = ?
		WHERE campaign_id = ? AND bucket = ? AND started_at = ? AND call_id = ?`,
		*call.Outcome, call.CampaignID.String(), bucket, call.StartedAt, call.ID.String(),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: update calls_by_campaign: %w", err)
	}

	return nil
}

// CountInFlight counts calls of the org started at or after since that have no outcome.
func (s *CallStore) CountInFlight(ctx context.Context, orgID uuid.UUID, since time.Time) (int, error) {
	total := 0
	for _, bucket := range bucketsSince(since, s.now()) {
		iter := s.session.Query(`SELECT outcome FROM calls_by_org
			WHERE org_id = ? AND bucket = ? AND started_at >= ?`,
			orgID.String(), bucket, since,
		).WithContext(ctx).Iter()

		var outcome *string
		for iter.Scan(&outcome) {
			if outcome == nil || *outcome == "" {
				total++
			}
			outcome = nil
		}
		if err := iter.Close(); err != nil {
			return 0, fmt.Errorf("call store: count in flight: %w", err)
		}
	}
	return total, nil
}

// CountStartedSince counts calls of the campaign started at or after since.
func (s *CallStore) CountStartedSince(ctx context.Context, campaignID uuid.UUID, since time.Time) (int, error) {
	total := 0
	for _, bucket := range bucketsSince(since, s.now()) {
		var n int
		if err := s.session.Query(`SELECT COUNT(*) FROM calls_by_campaign
			WHERE campaign_id = ? AND bucket = ? AND started_at >= ?`,
			campaignID.String(), bucket, since,
		).WithContext(ctx).Scan(&n); err != nil {
			return 0, fmt.Errorf("call store: count started: %w", err)
		}
		total += n
	}
	return total, nil
}

// bucketsSince lists the day buckets covering [since, now].
func bucketsSince(since, now time.Time) []time.Time {
	first := bucketDate(since)
	last := bucketDate(now)
	if last.Before(first) {
		return []time.Time{first}
	}

	var buckets []time.Time
	for b := first; !b.After(last); b = b.AddDate(0, 0, 1) {
		buckets = append(buckets, b)
	}
	return buckets
}

func bucketDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
