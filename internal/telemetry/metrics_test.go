package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/acme/campaign-dispatch/internal/domain"
)

func TestObserveTick(t *testing.T) {
	m := NewMetrics()
	m.ObserveTick(&domain.DispatchResult{
		Batches:    []domain.DispatchBatch{{CampaignID: uuid.New()}},
		TotalLeads: 6,
		Swept:      2,
		Skipped: []domain.SkippedCampaign{
			{CampaignID: uuid.New(), Reason: domain.SkipOutsideWindow},
			{CampaignID: uuid.New(), Reason: domain.SkipOutsideWindow},
		},
	}, 120*time.Millisecond)
	m.ObserveTick(nil, time.Second)

	if got := testutil.ToFloat64(m.leadsSelected); got != 6 {
		t.Fatalf("expected 6 leads, got %v", got)
	}
	if got := testutil.ToFloat64(m.skipped.WithLabelValues(string(domain.SkipOutsideWindow))); got != 2 {
		t.Fatalf("expected 2 window skips, got %v", got)
	}
	if got := testutil.ToFloat64(m.ticks.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected one failed tick, got %v", got)
	}

	expected := `
# HELP dispatch_leads_swept_total Exhausted leads moved to bad_lead.
# TYPE dispatch_leads_swept_total counter
dispatch_leads_swept_total 2
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "dispatch_leads_swept_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTick(nil, time.Second)
	m.TickDropped()
	m.BatchesPublished(1, 1)
	m.AvailabilityRequest("ok")
	m.CallEvent("call.started", "ok")
}
