package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/campaign-dispatch/internal/domain"
	"github.com/acme/campaign-dispatch/internal/repository"
	"github.com/acme/campaign-dispatch/internal/service/concurrency"
	"github.com/acme/campaign-dispatch/internal/service/lead"
	"github.com/acme/campaign-dispatch/internal/telephony"
	apperrors "github.com/acme/campaign-dispatch/pkg/errors"
)

// Monday 2024-06-03 10:00 in New York.
var tickTime = time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)

// fakeCampaigns pages like the store: campaigns are kept in cursor order and
// each call returns at most limit rows after the cursor.
type fakeCampaigns struct {
	campaigns   []*domain.Campaign
	schedules   map[uuid.UUID][]domain.ScheduleWindow
	scheduleErr map[uuid.UUID]error
	listErr     error
	pages       int
}

func (f *fakeCampaigns) ListActive(_ context.Context, after *repository.CampaignCursor, limit int) ([]*domain.Campaign, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.pages++
	start := 0
	if after != nil {
		for i, c := range f.campaigns {
			if c.ID == after.ID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(f.campaigns) {
		end = len(f.campaigns)
	}
	return f.campaigns[start:end], nil
}

func (f *fakeCampaigns) ListSchedule(_ context.Context, id uuid.UUID) ([]domain.ScheduleWindow, error) {
	if err := f.scheduleErr[id]; err != nil {
		return nil, err
	}
	return f.schedules[id], nil
}

type fakeAgents struct {
	agents map[uuid.UUID]*domain.VoiceAgent
	err    error
}

func (f *fakeAgents) Get(_ context.Context, id uuid.UUID) (*domain.VoiceAgent, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

type fakeCalls struct {
	today    map[uuid.UUID]int
	active   map[uuid.UUID]int
	since    time.Time
	countErr error
}

func (f *fakeCalls) CountInFlight(_ context.Context, orgID uuid.UUID, _ time.Time) (int, error) {
	return f.active[orgID], nil
}

func (f *fakeCalls) CountStartedSince(_ context.Context, campaignID uuid.UUID, since time.Time) (int, error) {
	f.since = since
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.today[campaignID], nil
}

type fakeLeads struct {
	rows    []domain.LeadCandidate
	listErr map[uuid.UUID]error
	onList  func()
}

func (f *fakeLeads) ListCandidates(_ context.Context, campaignID uuid.UUID, _ repository.LeadFilter) ([]domain.LeadCandidate, error) {
	if f.onList != nil {
		f.onList()
	}
	if err := f.listErr[campaignID]; err != nil {
		return nil, err
	}
	var out []domain.LeadCandidate
	for _, r := range f.rows {
		if r.Lead.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLeads) MarkExhausted(_ context.Context, campaignID uuid.UUID, maxRetries int, now time.Time) (int, error) {
	n := 0
	for i := range f.rows {
		if f.rows[i].Lead.CampaignID == campaignID && f.rows[i].Lead.Retire(maxRetries, now) {
			n++
		}
	}
	return n, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[uuid.UUID]bool
	lost     map[uuid.UUID]bool
	err      error
	renewErr error
	renewed  int
	released []uuid.UUID
}

func (f *fakeLocker) Acquire(_ context.Context, orgID uuid.UUID) (*concurrency.Lease, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held[orgID] {
		return nil, false, nil
	}
	return &concurrency.Lease{OrgID: orgID}, true, nil
}

func (f *fakeLocker) Renew(_ context.Context, lease *concurrency.Lease) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renewed++
	if f.renewErr != nil {
		return false, f.renewErr
	}
	return !f.lost[lease.OrgID], nil
}

func (f *fakeLocker) Release(_ context.Context, lease *concurrency.Lease) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, lease.OrgID)
	return nil
}

func (f *fakeLocker) renewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewed
}

type fakeVoice struct {
	state telephony.AgentState
	err   error
}

func (f fakeVoice) AgentStatus(context.Context, string) (telephony.AgentState, error) {
	return f.state, f.err
}

type harness struct {
	campaigns *fakeCampaigns
	agents    *fakeAgents
	calls     *fakeCalls
	leads     *fakeLeads
	locker    *fakeLocker
	voice     telephony.Provider
	opts      Options
}

func newHarness() *harness {
	return &harness{
		campaigns: &fakeCampaigns{
			schedules:   map[uuid.UUID][]domain.ScheduleWindow{},
			scheduleErr: map[uuid.UUID]error{},
		},
		agents: &fakeAgents{agents: map[uuid.UUID]*domain.VoiceAgent{}},
		calls:  &fakeCalls{today: map[uuid.UUID]int{}, active: map[uuid.UUID]int{}},
		leads:  &fakeLeads{listErr: map[uuid.UUID]error{}},
		opts:   Options{DefaultTimezone: "America/New_York"},
	}
}

func (h *harness) orchestrator() *Orchestrator {
	deps := Dependencies{
		Campaigns: h.campaigns,
		Agents:    h.agents,
		Calls:     h.calls,
		Allocator: concurrency.NewAllocator(concurrency.NewHeuristicEstimator(h.calls, 10*time.Minute), 8),
		Selector:  lead.NewSelector(h.leads),
		Sweeper:   lead.NewSweeper(h.leads),
		Voice:     h.voice,
	}
	if h.locker != nil {
		deps.Leases = h.locker
	}
	o := NewOrchestrator(deps, h.opts)
	o.now = func() time.Time { return tickTime }
	return o
}

// addCampaign registers an active campaign open all Monday with a provisioned agent.
func (h *harness) addCampaign(orgID uuid.UUID, dailyLimit int) *domain.Campaign {
	agentID := uuid.New()
	c := &domain.Campaign{
		ID:                 uuid.New(),
		OrgID:              orgID,
		Name:               "spring outreach",
		Status:             domain.CampaignStatusActive,
		DailyCallLimit:     dailyLimit,
		MaxRetries:         3,
		RetryIntervalHours: 4,
		TimeZone:           "America/New_York",
		AgentID:            &agentID,
	}
	h.campaigns.campaigns = append(h.campaigns.campaigns, c)
	h.campaigns.schedules[c.ID] = []domain.ScheduleWindow{{
		DayOfWeek: time.Monday,
		Enabled:   true,
		Slots:     []domain.TimeSlot{{Start: "09:00", End: "17:00"}},
	}}
	h.agents.agents[agentID] = &domain.VoiceAgent{
		ID:              agentID,
		OrgID:           orgID,
		Status:          domain.AgentStatusActive,
		ProviderAgentID: "agent-" + agentID.String()[:8],
	}
	return c
}

func (h *harness) addLead(c *domain.Campaign, retries int, age time.Duration, dnc bool) domain.LeadCandidate {
	contactID := uuid.New()
	lc := domain.LeadCandidate{
		Lead: domain.Lead{
			ID:         uuid.New(),
			OrgID:      c.OrgID,
			CampaignID: c.ID,
			ContactID:  contactID,
			Status:     domain.LeadStatusNew,
			RetryCount: retries,
			CreatedAt:  tickTime.Add(-age),
		},
		Contact: &domain.Contact{ID: contactID, FirstName: "Grace", LastName: "Hopper", Phone: "+15550123", IsDNC: dnc},
	}
	h.leads.rows = append(h.leads.rows, lc)
	return lc
}

func reasonFor(result *domain.DispatchResult, campaignID uuid.UUID) domain.SkipReason {
	for _, s := range result.Skipped {
		if s.CampaignID == campaignID {
			return s.Reason
		}
	}
	return ""
}

func TestBatchSizeBoundedByOrgCapacity(t *testing.T) {
	h := newHarness()
	org := uuid.New()
	c := h.addCampaign(org, 50)
	h.calls.today[c.ID] = 10
	h.calls.active[org] = 2

	for i := 0; i < 9; i++ {
		retries := 1
		if i < 4 {
			retries = 0
		}
		h.addLead(c, retries, time.Duration(9-i)*time.Hour, false)
	}

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Batches) != 1 {
		t.Fatalf("expected one batch, got %d (skipped %+v)", len(result.Batches), result.Skipped)
	}

	batch := result.Batches[0]
	if len(batch.Leads) != 6 || result.TotalLeads != 6 {
		t.Fatalf("expected 6 leads, got %d (total %d)", len(batch.Leads), result.TotalLeads)
	}
	for i := 0; i < 4; i++ {
		if batch.Leads[i].RetryCount != 0 {
			t.Fatalf("expected untried leads first, position %d has retry_count %d", i, batch.Leads[i].RetryCount)
		}
	}
	if batch.AgentID != *c.AgentID || batch.CampaignName != c.Name {
		t.Fatalf("unexpected batch header: %+v", batch)
	}

	ny, _ := time.LoadLocation("America/New_York")
	if want := time.Date(2024, 6, 3, 0, 0, 0, 0, ny); !h.calls.since.Equal(want) {
		t.Fatalf("daily count should start at campaign-local midnight %s, got %s", want, h.calls.since)
	}
}

func TestOrgCapacityConsumedGreedilyAcrossCampaigns(t *testing.T) {
	h := newHarness()
	org := uuid.New()
	first := h.addCampaign(org, 100)
	second := h.addCampaign(org, 100)
	third := h.addCampaign(org, 100)
	h.calls.active[org] = 1

	for i := 0; i < 5; i++ {
		h.addLead(first, 0, time.Hour, false)
		h.addLead(second, 0, time.Hour, false)
		h.addLead(third, 0, time.Hour, false)
	}

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalLeads != 7 {
		t.Fatalf("expected org total capped at 7, got %d", result.TotalLeads)
	}
	if len(result.Batches) != 2 || len(result.Batches[0].Leads) != 5 || len(result.Batches[1].Leads) != 2 {
		t.Fatalf("expected greedy 5+2 split, got %+v", result.Batches)
	}
	if reasonFor(result, third.ID) != domain.SkipOrgAtMaxConcurrency {
		t.Fatalf("expected third campaign skipped at max concurrency, got %q", reasonFor(result, third.ID))
	}
}

func TestOrgsAreCappedIndependently(t *testing.T) {
	h := newHarness()
	busy := uuid.New()
	idle := uuid.New()
	busyCampaign := h.addCampaign(busy, 100)
	idleCampaign := h.addCampaign(idle, 100)
	h.calls.active[busy] = 8

	for i := 0; i < 10; i++ {
		h.addLead(busyCampaign, 0, time.Hour, false)
		h.addLead(idleCampaign, 0, time.Hour, false)
	}

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reasonFor(result, busyCampaign.ID) != domain.SkipOrgAtMaxConcurrency {
		t.Fatalf("expected busy org skipped, got %q", reasonFor(result, busyCampaign.ID))
	}
	if len(result.Batches) != 1 || result.Batches[0].OrgID != idle || len(result.Batches[0].Leads) != 8 {
		t.Fatalf("expected idle org to get a full batch of 8, got %+v", result.Batches)
	}
}

func TestDNCContactNeverDispatched(t *testing.T) {
	h := newHarness()
	c := h.addCampaign(uuid.New(), 50)
	blocked := h.addLead(c, 0, 10*time.Hour, true)
	h.addLead(c, 0, time.Hour, false)

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, b := range result.Batches {
		for _, l := range b.Leads {
			if l.LeadID == blocked.Lead.ID {
				t.Fatalf("DNC contact dispatched")
			}
		}
	}
	if result.TotalLeads != 1 {
		t.Fatalf("expected the other lead dispatched, got %d", result.TotalLeads)
	}
}

func TestCampaignSkipReasons(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness, c *domain.Campaign)
		want  domain.SkipReason
	}{
		{
			name: "outside window",
			setup: func(h *harness, c *domain.Campaign) {
				h.campaigns.schedules[c.ID][0].Slots = []domain.TimeSlot{{Start: "13:00", End: "17:00"}}
			},
			want: domain.SkipOutsideWindow,
		},
		{
			name:  "daily limit reached",
			setup: func(h *harness, c *domain.Campaign) { h.calls.today[c.ID] = 50 },
			want:  domain.SkipDailyLimitReached,
		},
		{
			name:  "daily count failure",
			setup: func(h *harness, c *domain.Campaign) { h.calls.countErr = errors.New("timeout") },
			want:  domain.SkipDailyCountFailed,
		},
		{
			name:  "no agent",
			setup: func(h *harness, c *domain.Campaign) { c.AgentID = nil },
			want:  domain.SkipNoAgent,
		},
		{
			name:  "agent missing",
			setup: func(h *harness, c *domain.Campaign) { delete(h.agents.agents, *c.AgentID) },
			want:  domain.SkipAgentNotFound,
		},
		{
			name:  "agent lookup failure",
			setup: func(h *harness, c *domain.Campaign) { h.agents.err = errors.New("connection reset") },
			want:  domain.SkipAgentLookupFailed,
		},
		{
			name:  "agent of another org",
			setup: func(h *harness, c *domain.Campaign) { h.agents.agents[*c.AgentID].OrgID = uuid.New() },
			want:  domain.SkipAgentNotFound,
		},
		{
			name: "agent inactive",
			setup: func(h *harness, c *domain.Campaign) {
				h.agents.agents[*c.AgentID].Status = domain.AgentStatusInactive
			},
			want: domain.SkipAgentInactive,
		},
		{
			name:  "agent not provisioned",
			setup: func(h *harness, c *domain.Campaign) { h.agents.agents[*c.AgentID].ProviderAgentID = "" },
			want:  domain.SkipAgentNotProvisioned,
		},
		{
			name:  "voice provider down",
			setup: func(h *harness, c *domain.Campaign) { h.voice = fakeVoice{err: errors.New("503")} },
			want:  domain.SkipVoiceProviderDegraded,
		},
		{
			name: "voice provider reports inactive",
			setup: func(h *harness, c *domain.Campaign) {
				h.voice = fakeVoice{state: telephony.AgentStateInactive}
			},
			want: domain.SkipAgentInactive,
		},
		{
			name: "schedule lookup failure",
			setup: func(h *harness, c *domain.Campaign) {
				h.campaigns.scheduleErr[c.ID] = errors.New("day 1: decode slots: unexpected end of JSON input")
			},
			want: domain.SkipScheduleUnavailable,
		},
		{
			name: "lead cooling down at the tick instant",
			setup: func(h *harness, c *domain.Campaign) {
				last := tickTime.Add(-3 * time.Hour)
				h.leads.rows[0].Lead.RetryCount = 1
				h.leads.rows[0].Lead.LastActivityAt = &last
			},
			want: domain.SkipNoEligibleLeads,
		},
		{
			name:  "lead query failure",
			setup: func(h *harness, c *domain.Campaign) { h.leads.listErr[c.ID] = errors.New("syntax") },
			want:  domain.SkipLeadQueryFailed,
		},
		{
			name:  "no eligible leads",
			setup: func(h *harness, c *domain.Campaign) { h.leads.rows = nil },
			want:  domain.SkipNoEligibleLeads,
		},
		{
			name:  "organization at max concurrency",
			setup: func(h *harness, c *domain.Campaign) { h.calls.active[c.OrgID] = 9 },
			want:  domain.SkipOrgAtMaxConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			c := h.addCampaign(uuid.New(), 50)
			h.addLead(c, 0, time.Hour, false)
			tt.setup(h, c)

			result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result.Batches) != 0 || result.TotalLeads != 0 {
				t.Fatalf("expected no batches, got %+v", result.Batches)
			}
			if got := reasonFor(result, c.ID); got != tt.want {
				t.Fatalf("expected reason %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFailingCampaignDoesNotAbortTick(t *testing.T) {
	h := newHarness()
	org := uuid.New()
	broken := h.addCampaign(org, 50)
	healthy := h.addCampaign(org, 50)
	h.addLead(broken, 0, time.Hour, false)
	h.addLead(healthy, 0, time.Hour, false)
	h.leads.listErr[broken.ID] = errors.New("deadlock detected")

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reasonFor(result, broken.ID) != domain.SkipLeadQueryFailed {
		t.Fatalf("expected broken campaign skipped, got %+v", result.Skipped)
	}
	if len(result.Batches) != 1 || result.Batches[0].CampaignID != healthy.ID {
		t.Fatalf("expected healthy campaign dispatched, got %+v", result.Batches)
	}
}

func TestSweeperRunsForEveryActiveCampaign(t *testing.T) {
	h := newHarness()
	org := uuid.New()
	open := h.addCampaign(org, 50)
	closed := h.addCampaign(org, 50)
	h.campaigns.schedules[closed.ID][0].Enabled = false
	h.addLead(open, 3, time.Hour, false)
	h.addLead(closed, 3, time.Hour, false)

	o := h.orchestrator()
	result, err := o.ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Swept != 2 {
		t.Fatalf("expected 2 leads retired across both campaigns, got %d", result.Swept)
	}
	for _, r := range h.leads.rows {
		if r.Lead.Status != domain.LeadStatusBadLead {
			t.Fatalf("lead %s not retired", r.Lead.ID)
		}
		if !r.Lead.UpdatedAt.Equal(tickTime) {
			t.Fatalf("lead %s retired at %s, want the tick instant", r.Lead.ID, r.Lead.UpdatedAt)
		}
	}

	again, err := o.ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Swept != 0 {
		t.Fatalf("second sweep should be a no-op, got %d", again.Swept)
	}
}

func TestNoActiveCampaigns(t *testing.T) {
	result, err := newHarness().orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Batches) != 0 || len(result.Skipped) != 0 || result.TotalLeads != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestListFailureIsFatal(t *testing.T) {
	h := newHarness()
	boom := errors.New("db down")
	h.campaigns.listErr = boom
	_, err := h.orchestrator().Tick(context.Background())
	if err == nil {
		t.Fatalf("expected error when active campaigns cannot be listed")
	}
	if !errors.Is(err, apperrors.ErrUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected unavailable error wrapping the cause, got %v", err)
	}
}

func TestEveryActiveCampaignPageIsProcessed(t *testing.T) {
	h := newHarness()
	var last *domain.Campaign
	for i := 0; i < 501; i++ {
		last = h.addCampaign(uuid.New(), 50)
	}
	exhausted := h.addLead(last, 3, 2*time.Hour, false)
	fresh := h.addLead(last, 0, time.Hour, false)

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.campaigns.pages != 2 {
		t.Fatalf("expected two pages of 500, got %d calls", h.campaigns.pages)
	}
	if len(result.Batches)+len(result.Skipped) != 501 {
		t.Fatalf("expected every campaign accounted for, got %d batches and %d skips", len(result.Batches), len(result.Skipped))
	}
	if len(result.Batches) != 1 || result.Batches[0].CampaignID != last.ID || result.Batches[0].Leads[0].LeadID != fresh.Lead.ID {
		t.Fatalf("expected the campaign past the first page dispatched, got %+v", result.Batches)
	}
	if result.Swept != 1 {
		t.Fatalf("expected the exhausted lead swept, got %d", result.Swept)
	}
	for _, r := range h.leads.rows {
		if r.Lead.ID == exhausted.Lead.ID && r.Lead.Status != domain.LeadStatusBadLead {
			t.Fatalf("exhausted lead left with status %q", r.Lead.Status)
		}
	}
}

func TestListActiveFollowsCursor(t *testing.T) {
	h := newHarness()
	h.opts.CampaignPageSize = 2
	for i := 0; i < 5; i++ {
		c := h.addCampaign(uuid.New(), 50)
		h.addLead(c, 0, time.Hour, false)
	}

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.campaigns.pages != 3 {
		t.Fatalf("expected 3 pages, got %d", h.campaigns.pages)
	}
	if len(result.Batches) != 5 {
		t.Fatalf("expected all 5 campaigns dispatched once, got %d", len(result.Batches))
	}
	seen := map[uuid.UUID]bool{}
	for i, b := range result.Batches {
		if seen[b.CampaignID] {
			t.Fatalf("campaign %s dispatched twice", b.CampaignID)
		}
		seen[b.CampaignID] = true
		if b.CampaignID != h.campaigns.campaigns[i].ID {
			t.Fatalf("batch %d out of listing order", i)
		}
	}
}

func TestHeldLeaseSkipsOrganization(t *testing.T) {
	h := newHarness()
	locked := uuid.New()
	free := uuid.New()
	lockedCampaign := h.addCampaign(locked, 50)
	freeCampaign := h.addCampaign(free, 50)
	h.addLead(lockedCampaign, 0, time.Hour, false)
	h.addLead(freeCampaign, 0, time.Hour, false)
	h.locker = &fakeLocker{held: map[uuid.UUID]bool{locked: true}}

	result, err := h.orchestrator().Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reasonFor(result, lockedCampaign.ID) != domain.SkipOrgTickInProgress {
		t.Fatalf("expected locked org skipped, got %+v", result.Skipped)
	}
	if len(result.Batches) != 1 || result.Batches[0].CampaignID != freeCampaign.ID {
		t.Fatalf("expected free org dispatched, got %+v", result.Batches)
	}
	if len(h.locker.released) != 1 || h.locker.released[0] != free {
		t.Fatalf("expected only the acquired lease released, got %v", h.locker.released)
	}
}

func TestLeasesRenewedDuringTick(t *testing.T) {
	h := newHarness()
	org := uuid.New()
	c := h.addCampaign(org, 50)
	h.addLead(c, 0, time.Hour, false)
	h.locker = &fakeLocker{held: map[uuid.UUID]bool{}}
	h.opts.LeaseRenewInterval = time.Millisecond
	h.leads.onList = func() {
		deadline := time.Now().Add(2 * time.Second)
		for h.locker.renewCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}

	result, err := h.orchestrator().Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.locker.renewCount() == 0 {
		t.Fatalf("expected the held lease renewed while the tick ran")
	}
	if len(result.Batches) != 1 {
		t.Fatalf("expected the org dispatched, got %+v", result.Skipped)
	}
	if len(h.locker.released) != 1 || h.locker.released[0] != org {
		t.Fatalf("expected the lease released at tick end, got %v", h.locker.released)
	}
}

func TestLostLeaseIsNotReleased(t *testing.T) {
	kept, lost := uuid.New(), uuid.New()
	locker := &fakeLocker{lost: map[uuid.UUID]bool{lost: true}}
	o := NewOrchestrator(Dependencies{Leases: locker}, Options{})

	held := &leaseSet{}
	held.add(&concurrency.Lease{OrgID: kept})
	held.add(&concurrency.Lease{OrgID: lost})
	o.renewLeases(context.Background(), held)

	leases := held.snapshot()
	if len(leases) != 1 || leases[0].OrgID != kept {
		t.Fatalf("expected only the renewed lease kept, got %+v", leases)
	}
	o.releaseLeases(context.Background(), leases)
	if len(locker.released) != 1 || locker.released[0] != kept {
		t.Fatalf("expected only the kept lease released, got %v", locker.released)
	}
}

func TestRenewErrorKeepsLease(t *testing.T) {
	org := uuid.New()
	locker := &fakeLocker{renewErr: errors.New("i/o timeout")}
	o := NewOrchestrator(Dependencies{Leases: locker}, Options{})

	held := &leaseSet{}
	held.add(&concurrency.Lease{OrgID: org})
	o.renewLeases(context.Background(), held)

	if leases := held.snapshot(); len(leases) != 1 {
		t.Fatalf("a transient renew error should not drop the lease, got %+v", leases)
	}
}

func TestLeaseErrorSkipsOrganization(t *testing.T) {
	h := newHarness()
	c := h.addCampaign(uuid.New(), 50)
	h.addLead(c, 0, time.Hour, false)
	h.locker = &fakeLocker{err: errors.New("redis unavailable")}

	result, err := h.orchestrator().ComputeNextDispatchBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reasonFor(result, c.ID) != domain.SkipOrgLeaseFailed {
		t.Fatalf("expected lease failure skip, got %+v", result.Skipped)
	}
}

func TestGroupByOrgKeepsListingOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	c1 := &domain.Campaign{ID: uuid.New(), OrgID: a}
	c2 := &domain.Campaign{ID: uuid.New(), OrgID: b}
	c3 := &domain.Campaign{ID: uuid.New(), OrgID: a}

	groups := groupByOrg([]*domain.Campaign{c1, c2, c3})
	if len(groups) != 2 || groups[0].orgID != a || groups[1].orgID != b {
		t.Fatalf("unexpected grouping %+v", groups)
	}
	if groups[0].campaigns[0] != c1 || groups[0].campaigns[1] != c3 {
		t.Fatalf("campaign order not preserved")
	}
}
