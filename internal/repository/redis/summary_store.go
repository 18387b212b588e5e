package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/acme/campaign-dispatch/internal/domain"
	redisinfra "github.com/acme/campaign-dispatch/internal/infra/redis"
	"github.com/acme/campaign-dispatch/internal/repository"
)

// SummaryStore keeps the last tick digest in a hash plus a running tick counter.
type SummaryStore struct {
	client *redis.Client
	prefix string
}

// NewSummaryStore constructs the store.
func NewSummaryStore(client *redis.Client, prefix string) *SummaryStore {
	return &SummaryStore{client: client, prefix: prefix}
}

// Save overwrites the last summary and bumps the tick counter.
func (s *SummaryStore) Save(ctx context.Context, summary domain.TickSummary) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.ticksKey())
	pipe.HSet(ctx, s.lastKey(), map[string]any{
		"tick_id":     summary.TickID.String(),
		"time":        summary.Time.UTC().Format(time.RFC3339),
		"batches":     summary.Batches,
		"total_leads": summary.TotalLeads,
		"skipped":     summary.Skipped,
		"swept":       summary.Swept,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("summary store: save: %w", err)
	}
	return nil
}

// Last returns the most recent summary, or repository.ErrNotFound before the first tick.
func (s *SummaryStore) Last(ctx context.Context) (*domain.TickSummary, error) {
	fields, err := s.client.HGetAll(ctx, s.lastKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("summary store: load: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no tick recorded", repository.ErrNotFound)
	}

	summary, err := parseSummary(fields)
	if err != nil {
		return nil, err
	}

	ticks, err := s.client.Get(ctx, s.ticksKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("summary store: ticks: %w", err)
	}
	summary.Ticks = ticks
	return summary, nil
}

func (s *SummaryStore) lastKey() string {
	return redisinfra.Key(s.prefix, "scheduler", "last")
}

func (s *SummaryStore) ticksKey() string {
	return redisinfra.Key(s.prefix, "scheduler", "ticks")
}

func parseSummary(fields map[string]string) (*domain.TickSummary, error) {
	summary := &domain.TickSummary{}

	if raw := fields["tick_id"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("summary store: tick_id: %w", err)
		}
		summary.TickID = id
	}
	if raw := fields["time"]; raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("summary store: time: %w", err)
		}
		summary.Time = t
	}

	ints := map[string]*int{
		"batches":     &summary.Batches,
		"total_leads": &summary.TotalLeads,
		"skipped":     &summary.Skipped,
		"swept":       &summary.Swept,
	}
	for key, dst := range ints {
		raw, ok := fields[key]
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("summary store: %s: %w", key, err)
		}
		*dst = n
	}
	return summary, nil
}
