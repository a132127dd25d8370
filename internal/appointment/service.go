package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/carebridge/healthplan-backend/internal/redis"
)

var (
	ErrIllegalTransition = errors.New("status transition not allowed from current status")
	ErrAccessDenied      = errors.New("caller may not modify this appointment")
	ErrValidation        = errors.New("invalid appointment request")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
)

// Actor identifies who is asking for a mutation. Staff is derived by the
// auth layer in front of this package; trusted internal callers (workers,
// batch jobs) pass Staff=true directly.
type Actor struct {
	ID    uuid.UUID
	Staff bool
}

// Notifier receives post-commit events. Delivery is best effort and at most
// once; failures are logged by the service and never surfaced to callers.
type Notifier interface {
	BookingCreated(ctx context.Context, a *Appointment) error
	StatusChanged(ctx context.Context, a *Appointment, previous Status) error
	ReminderDue(ctx context.Context, a *Appointment) error
}

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time

	reminderLead time.Duration
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		locker:       locker,
		notifier:     notifier,
		log:          log,
		now:          time.Now,
		reminderLead: 24 * time.Hour,
	}
}

// SetReminderLead overrides how far ahead of the start time reminders go out.
func (s *Service) SetReminderLead(d time.Duration) {
	if d > 0 {
		s.reminderLead = d
	}
}

type BookRequest struct {
	PatientID  uuid.UUID
	FacilityID uuid.UUID
	Date       time.Time
	Time       TimeOfDay
	Kind       Kind
	Reason     string
	Notes      string
	Duration   int
}

// Book reserves a slot for a patient. The per-slot lock keeps concurrent
// requests for the same slot from racing through the conflict check; the
// repository's active-slot uniqueness is the correctness backstop either
// way, so a lost race still surfaces as ErrSlotTaken, never a double
// booking. No automatic retry: callers re-query availability and resubmit.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown appointment kind %q", ErrValidation, req.Kind)
	}
	if req.Time.At(req.Date).Before(s.now()) {
		return nil, fmt.Errorf("%w: appointment time is in the past", ErrValidation)
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetFacilityByID(ctx, req.FacilityID); err != nil {
		if errors.Is(err, ErrFacilityNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load facility: %w", err)
	}

	date := DateOnly(req.Date)
	duration := req.Duration
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, SlotKey(req.FacilityID, date, req.Time), func(lockCtx context.Context) error {
		held, err := s.repo.HasActiveAppointment(lockCtx, req.FacilityID, date, req.Time, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check slot holder: %w", err)
		}
		if held {
			return ErrSlotTaken
		}

		now := s.now()
		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			ID:         uuid.New(),
			PatientID:  req.PatientID,
			FacilityID: req.FacilityID,
			Date:       date,
			Time:       req.Time,
			Kind:       req.Kind,
			Reason:     req.Reason,
			Notes:      req.Notes,
			Duration:   duration,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.dispatch(ctx, created.ID, "booking_created", func(nctx context.Context) error {
		return s.notifier.BookingCreated(nctx, created)
	})

	return created, nil
}

// TransitionExtra carries transition-specific inputs.
type TransitionExtra struct {
	CancellationReason string
	Notes              string
}

// Transition moves an appointment to target, applying the side-effect
// fields the target mandates atomically with the status write.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target Status, actor Actor, extra TransitionExtra) (*Appointment, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}
	// Reaching rescheduled requires a new slot that passed the conflict
	// check, which only Reschedule does.
	if target == StatusRescheduled {
		return nil, fmt.Errorf("%w: rescheduling requires a new date and time, use the reschedule operation", ErrValidation)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, appt); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, appt.Status, target)
	}

	previous := appt.Status
	now := s.now()
	next := *appt
	next.Status = target
	next.UpdatedAt = now
	if extra.Notes != "" {
		next.Notes = extra.Notes
	}

	switch target {
	case StatusCancelled:
		if strings.TrimSpace(extra.CancellationReason) == "" {
			return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
		}
		actorID := actor.ID
		next.CancellationReason = extra.CancellationReason
		next.CancelledBy = &actorID
		next.CancelledAt = &now
	case StatusConfirmed:
		actorID := actor.ID
		next.ConfirmedBy = &actorID
		next.ConfirmedAt = &now
	case StatusCompleted:
		actorID := actor.ID
		next.CompletedBy = &actorID
		next.CompletedAt = &now
	}

	updated, err := s.repo.UpdateAppointment(ctx, &next, previous)
	if err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, fmt.Errorf("%w: appointment changed, reload and retry", ErrIllegalTransition)
		}
		return nil, err
	}

	s.dispatch(ctx, updated.ID, "status_changed", func(nctx context.Context) error {
		return s.notifier.StatusChanged(nctx, updated, previous)
	})

	return updated, nil
}

// Confirm, Cancel and Complete are the user-facing spellings of Transition.

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.Transition(ctx, id, StatusConfirmed, actor, TransitionExtra{})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCancelled, actor, TransitionExtra{CancellationReason: reason})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCompleted, actor, TransitionExtra{})
}

// Reschedule moves an appointment to a new (date, time) after re-validating
// the new slot against all other active appointments. On success the row
// lands in rescheduled at the new slot, still non-terminal, and needs an
// explicit subsequent confirm. The original slot and status are untouched
// on any failure.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime TimeOfDay, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, appt); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, appt.Status, StatusRescheduled)
	}
	if newTime.At(newDate).Before(s.now()) {
		return nil, fmt.Errorf("%w: new appointment time is in the past", ErrValidation)
	}

	previous := appt.Status
	date := DateOnly(newDate)

	var updated *Appointment

	err = s.locker.WithSlotLock(ctx, SlotKey(appt.FacilityID, date, newTime), func(lockCtx context.Context) error {
		held, err := s.repo.HasActiveAppointment(lockCtx, appt.FacilityID, date, newTime, appt.ID)
		if err != nil {
			return fmt.Errorf("check slot holder: %w", err)
		}
		if held {
			return ErrSlotTaken
		}

		next := *appt
		next.Date = date
		next.Time = newTime
		next.Status = StatusRescheduled
		next.UpdatedAt = s.now()
		next.ReminderSent = false

		updated, err = s.repo.UpdateAppointment(lockCtx, &next, previous)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrStaleStatus) {
			return nil, fmt.Errorf("%w: appointment changed, reload and retry", ErrIllegalTransition)
		}
		return nil, err
	}

	s.dispatch(ctx, updated.ID, "status_changed", func(nctx context.Context) error {
		return s.notifier.StatusChanged(nctx, updated, previous)
	})

	return updated, nil
}

// AvailableSlots recomputes the free start times for a facility and date on
// every call. No caching, no side effects.
func (s *Service) AvailableSlots(ctx context.Context, facilityID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	facility, err := s.repo.GetFacilityByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}

	day := DateOnly(date)
	taken, err := s.repo.ListActiveTimes(ctx, facilityID, day)
	if err != nil {
		return nil, fmt.Errorf("list booked times: %w", err)
	}

	return FreeSlots(facility, day, taken), nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Appointment, error) {
	clampFilter(&f)
	return s.repo.ListByPatient(ctx, patientID, f)
}

func (s *Service) ListByFacility(ctx context.Context, facilityID uuid.UUID, f ListFilter) ([]Appointment, error) {
	clampFilter(&f)
	return s.repo.ListByFacility(ctx, facilityID, f)
}

// SendDueReminders is called periodically by the reminder worker. It finds
// confirmed appointments starting within the lead window that have not been
// reminded yet, dispatches a reminder for each, and marks the row.
func (s *Service) SendDueReminders(ctx context.Context) error {
	now := s.now()
	due, err := s.repo.FindReminderDue(ctx, now, now.Add(s.reminderLead))
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}

	for i := range due {
		appt := due[i]
		if err := s.notifier.ReminderDue(ctx, &appt); err != nil {
			s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("reminder dispatch failed")
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, appt.ID, now); err != nil {
			s.log.Warn().Err(err).Stringer("appointment_id", appt.ID).Msg("mark reminder sent failed")
		}
	}

	return nil
}

func (s *Service) authorize(actor Actor, a *Appointment) error {
	if actor.Staff || actor.ID == a.PatientID {
		return nil
	}
	return ErrAccessDenied
}

// dispatch runs a notification after the state change has committed.
// Failures are logged and swallowed: delivery is best effort and must never
// roll back the committed change.
func (s *Service) dispatch(ctx context.Context, apptID uuid.UUID, event string, fn func(context.Context) error) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := fn(nctx); err != nil {
		s.log.Warn().Err(err).Str("event", event).Stringer("appointment_id", apptID).Msg("notification delivery failed")
	}
}

func clampFilter(f *ListFilter) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
