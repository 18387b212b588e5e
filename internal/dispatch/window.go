package dispatch

import (
	"strings"
	"time"

	"github.com/acme/campaign-dispatch/internal/domain"
)

const clockLayout = "15:04"

// IsWithinWindow reports whether nowLocal falls inside one of the enabled
// slots configured for its weekday. Slots are half-open [start, end) and
// never span midnight; malformed or inverted slots never match.
func IsWithinWindow(windows []domain.ScheduleWindow, nowLocal time.Time) bool {
	day, ok := windowFor(windows, nowLocal.Weekday())
	if !ok || !day.Enabled {
		return false
	}

	now := nowLocal.Hour()*60 + nowLocal.Minute()
	for _, slot := range day.Slots {
		start, ok := minuteOfDay(slot.Start)
		if !ok {
			continue
		}
		end, ok := minuteOfDay(slot.End)
		if !ok || end <= start {
			continue
		}
		if now >= start && now < end {
			return true
		}
	}
	return false
}

// ResolveLocation loads tz, then fallback, then UTC.
func ResolveLocation(tz, fallback string) *time.Location {
	for _, name := range []string{tz, fallback} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

func windowFor(windows []domain.ScheduleWindow, day time.Weekday) (domain.ScheduleWindow, bool) {
	for _, w := range windows {
		if w.DayOfWeek == day {
			return w, true
		}
	}
	return domain.ScheduleWindow{}, false
}

// minuteOfDay parses HH:MM. "24:00" is accepted as end of day.
func minuteOfDay(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "24:00" {
		return 24 * 60, true
	}
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
