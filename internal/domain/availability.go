package domain

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus enumerates appointment states.
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is a booking held by an organization.
type Appointment struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	Status          AppointmentStatus
}

// OccupiesTime reports whether the appointment blocks its interval.
func (a *Appointment) OccupiesTime() bool {
	return a.Status != AppointmentStatusCancelled
}

// BusyPeriod returns the interval held by the appointment.
func (a *Appointment) BusyPeriod() BusyPeriod {
	return BusyPeriod{
		Start:  a.ScheduledAt,
		End:    a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute),
		Source: BusySourceAppointment,
	}
}

// BusySource identifies where a busy period came from.
type BusySource string

const (
	BusySourceCalendar    BusySource = "calendar"
	BusySourceAppointment BusySource = "appointment"
)

// BusyPeriod is a half-open interval [Start, End) during which time is taken.
type BusyPeriod struct {
	Start  time.Time
	End    time.Time
	Source BusySource
}

// Slot is a bookable interval rendered as local HH:MM.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is the answer to an availability query.
type Availability struct {
	Date     string `json:"date"`
	Slots    []Slot `json:"available_slots"`
	TimeZone string `json:"timezone"`
}
