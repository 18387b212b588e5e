package dispatch

import (
	"testing"
	"time"

	"github.com/acme/campaign-dispatch/internal/domain"
)

func mondayNineToFive() []domain.ScheduleWindow {
	return []domain.ScheduleWindow{
		{
			DayOfWeek: time.Monday,
			Enabled:   true,
			Slots:     []domain.TimeSlot{{Start: "09:00", End: "12:00"}, {Start: "13:00", End: "17:00"}},
		},
		{DayOfWeek: time.Tuesday, Enabled: false, Slots: []domain.TimeSlot{{Start: "09:00", End: "17:00"}}},
	}
}

func TestIsWithinWindow(t *testing.T) {
	windows := mondayNineToFive()

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "inside first slot", now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), want: true},
		{name: "start is inclusive", now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), want: true},
		{name: "end is exclusive", now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), want: false},
		{name: "last minute of slot", now: time.Date(2024, 1, 1, 16, 59, 59, 0, time.UTC), want: true},
		{name: "gap between slots", now: time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC), want: false},
		{name: "evening", now: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), want: false},
		{name: "disabled day", now: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), want: false},
		{name: "no row for day", now: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWithinWindow(windows, tt.now); got != tt.want {
				t.Fatalf("IsWithinWindow(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestIsWithinWindowDoesNotSpanMidnight(t *testing.T) {
	windows := []domain.ScheduleWindow{{
		DayOfWeek: time.Monday,
		Enabled:   true,
		Slots:     []domain.TimeSlot{{Start: "22:00", End: "02:00"}},
	}}

	if IsWithinWindow(windows, time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("inverted slot must not match late evening")
	}
	if IsWithinWindow(windows, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("inverted slot must not carry into the next day")
	}
}

func TestIsWithinWindowMalformedSlots(t *testing.T) {
	windows := []domain.ScheduleWindow{{
		DayOfWeek: time.Monday,
		Enabled:   true,
		Slots:     []domain.TimeSlot{{Start: "nine", End: "17:00"}, {Start: "", End: ""}, {Start: "18:00", End: "24:00"}},
	}}

	if IsWithinWindow(windows, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("malformed slot matched")
	}
	if !IsWithinWindow(windows, time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)) {
		t.Fatalf("expected 24:00 to close the day")
	}
	if IsWithinWindow(nil, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("empty schedule matched")
	}
}

func TestResolveLocation(t *testing.T) {
	if loc := ResolveLocation("Europe/Berlin", "America/New_York"); loc.String() != "Europe/Berlin" {
		t.Fatalf("expected campaign zone, got %s", loc)
	}
	if loc := ResolveLocation("Mars/Olympus", "America/New_York"); loc.String() != "America/New_York" {
		t.Fatalf("expected fallback zone, got %s", loc)
	}
	if loc := ResolveLocation("", ""); loc != time.UTC {
		t.Fatalf("expected UTC, got %s", loc)
	}
}
