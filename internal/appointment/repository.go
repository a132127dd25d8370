package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrFacilityNotFound    = errors.New("facility not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken means another non-terminal appointment already holds the
	// requested (facility, date, time). The partial unique index on the
	// active-slot key is the authoritative source of this error; pre-checks
	// only shortcut the common case.
	ErrSlotTaken = errors.New("time slot is already booked")

	// ErrStaleStatus means a compare-and-swap update found the row in a
	// different status than the caller read. The caller's view is stale.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// ListFilter narrows appointment listings. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For the slot calculator and conflict checks: start times of all
	// non-terminal appointments at (facility, date).
	ListActiveTimes(ctx context.Context, facilityID uuid.UUID, date time.Time) ([]TimeOfDay, error)

	// HasActiveAppointment reports whether a non-terminal appointment other
	// than excludeID holds (facility, date, time).
	HasActiveAppointment(ctx context.Context, facilityID uuid.UUID, date time.Time, t TimeOfDay, excludeID uuid.UUID) (bool, error)

	// CreateAppointment persists a new pending appointment. Returns
	// ErrSlotTaken if the active-slot key is already held.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateAppointment writes the full row, guarded by a compare-and-swap
	// on the status the caller read (ErrStaleStatus on mismatch). A date or
	// time change is subject to the same active-slot uniqueness as creation.
	UpdateAppointment(ctx context.Context, a *Appointment, from Status) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Appointment, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID, f ListFilter) ([]Appointment, error)

	// Reminder worker
	FindReminderDue(ctx context.Context, from, until time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
