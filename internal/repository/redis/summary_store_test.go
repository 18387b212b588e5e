package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestParseSummary(t *testing.T) {
	id := uuid.New()
	got, err := parseSummary(map[string]string{
		"tick_id":     id.String(),
		"time":        "2024-06-03T14:00:00Z",
		"batches":     "3",
		"total_leads": "17",
		"skipped":     "4",
		"swept":       "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TickID != id || got.Batches != 3 || got.TotalLeads != 17 || got.Skipped != 4 || got.Swept != 2 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if !got.Time.Equal(time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %s", got.Time)
	}
}

func TestParseSummaryRejectsGarbage(t *testing.T) {
	if _, err := parseSummary(map[string]string{"batches": "many"}); err == nil {
		t.Fatalf("expected error for non-numeric field")
	}
	if _, err := parseSummary(map[string]string{"time": "yesterday"}); err == nil {
		t.Fatalf("expected error for bad time")
	}
}
