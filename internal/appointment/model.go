package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusNoShow      Status = "no_show"
	StatusRejected    Status = "rejected"
)

// Terminal statuses no longer hold their slot. Everything else keeps the
// (facility, date, time) key occupied.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRejected:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled,
		StatusRescheduled, StatusNoShow, StatusRejected:
		return true
	}
	return false
}

type Kind string

const (
	KindConsultation Kind = "consultation"
	KindFollowUp     Kind = "follow_up"
	KindCheckUp      Kind = "check_up"
	KindVaccination  Kind = "vaccination"
	KindProcedure    Kind = "procedure"
	KindTest         Kind = "test"
	KindEmergency    Kind = "emergency"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConsultation, KindFollowUp, KindCheckUp, KindVaccination,
		KindProcedure, KindTest, KindEmergency:
		return true
	}
	return false
}

// TimeOfDay is a minute-granularity time within a day, stored as minutes
// since midnight.
type TimeOfDay int

var ErrInvalidTimeOfDay = errors.New("invalid time of day")

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, ErrInvalidTimeOfDay
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, ErrInvalidTimeOfDay
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// At combines a calendar date with the time of day in the date's location.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, date.Location())
}

// DateOnly drops the time component of a timestamp.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

const DefaultDurationMinutes = 30

type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	FacilityID uuid.UUID
	Date       time.Time
	Time       TimeOfDay
	Kind       Kind
	Reason     string
	Duration   int // minutes
	Status     Status
	Notes      string

	CancellationReason string
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time
	ConfirmedBy        *uuid.UUID
	ConfirmedAt        *time.Time
	CompletedBy        *uuid.UUID
	CompletedAt        *time.Time

	ReminderSent       bool
	LastReminderSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotKey identifies the bookable interval this appointment occupies.
func (a *Appointment) SlotKey() string {
	return SlotKey(a.FacilityID, a.Date, a.Time)
}

func SlotKey(facilityID uuid.UUID, date time.Time, t TimeOfDay) string {
	return fmt.Sprintf("%s:%s:%s", facilityID, date.Format("2006-01-02"), t)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayHours is one weekday's operating window. A nil entry in Facility.Hours
// means the facility is closed that day.
type DayHours struct {
	Open  TimeOfDay
	Close TimeOfDay
}

type Facility struct {
	ID          uuid.UUID
	Name        string
	Address     string
	Phone       string
	Hours       [7]*DayHours // indexed by time.Weekday
	SlotMinutes int          // slot granularity
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HoursOn returns the operating window for a calendar date, nil if closed.
func (f *Facility) HoursOn(date time.Time) *DayHours {
	return f.Hours[date.Weekday()]
}

func (f *Facility) Granularity() int {
	if f.SlotMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return f.SlotMinutes
}
