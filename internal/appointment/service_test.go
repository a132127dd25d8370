package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/carebridge/healthplan-backend/internal/redis"
)

// -------------------------
// Test notifier
// -------------------------

type notifierEvent struct {
	Type          string
	AppointmentID uuid.UUID
	Status        Status
	PrevStatus    Status
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
	fail   bool
}

func (n *captureNotifier) record(ev notifierEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("notifier down")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *captureNotifier) BookingCreated(ctx context.Context, a *Appointment) error {
	return n.record(notifierEvent{Type: "booking_created", AppointmentID: a.ID, Status: a.Status})
}

func (n *captureNotifier) StatusChanged(ctx context.Context, a *Appointment, previous Status) error {
	return n.record(notifierEvent{Type: "status_changed", AppointmentID: a.ID, Status: a.Status, PrevStatus: previous})
}

func (n *captureNotifier) ReminderDue(ctx context.Context, a *Appointment) error {
	return n.record(notifierEvent{Type: "reminder_due", AppointmentID: a.ID, Status: a.Status})
}

func (n *captureNotifier) byType(typ string) []notifierEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifierEvent
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// -------------------------
// Fixture
// -------------------------

var (
	fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	bookDate = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC) // a Monday
)

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	notifier *captureNotifier
	facility Facility
	patient  Patient
	patient2 Patient
	staff    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	notifier := &captureNotifier{}
	svc := NewService(repo, redisclient.NoopLocker{}, notifier, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }

	open, _ := ParseTimeOfDay("09:00")
	closeAt, _ := ParseTimeOfDay("12:00")
	facility := Facility{ID: uuid.New(), Name: "Riverside Clinic", SlotMinutes: 30}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		facility.Hours[wd] = &DayHours{Open: open, Close: closeAt}
	}
	repo.PutFacility(facility)

	patient := Patient{ID: uuid.New(), Name: "Ana Flores"}
	patient2 := Patient{ID: uuid.New(), Name: "Luis Romero"}
	repo.PutPatient(patient)
	repo.PutPatient(patient2)

	return &fixture{
		svc:      svc,
		repo:     repo,
		notifier: notifier,
		facility: facility,
		patient:  patient,
		patient2: patient2,
		staff:    Actor{ID: uuid.New(), Staff: true},
	}
}

func (f *fixture) book(t *testing.T, patientID uuid.UUID, at string) *Appointment {
	t.Helper()
	tod, err := ParseTimeOfDay(at)
	require.NoError(t, err)

	appt, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:  patientID,
		FacilityID: f.facility.ID,
		Date:       bookDate,
		Time:       tod,
		Kind:       KindConsultation,
		Reason:     "routine check",
	})
	require.NoError(t, err)
	return appt
}

// -------------------------
// Booking
// -------------------------

func TestBook_CreatesPendingAppointment(t *testing.T) {
	f := newFixture(t)

	appt := f.book(t, f.patient.ID, "10:00")

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, f.facility.ID, appt.FacilityID)
	assert.Equal(t, "10:00", appt.Time.String())
	assert.Equal(t, DefaultDurationMinutes, appt.Duration)

	created := f.notifier.byType("booking_created")
	require.Len(t, created, 1)
	assert.Equal(t, appt.ID, created[0].AppointmentID)
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.patient.ID, "10:00")

	tod, _ := ParseTimeOfDay("10:00")
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:  f.patient2.ID,
		FacilityID: f.facility.ID,
		Date:       bookDate,
		Time:       tod,
		Kind:       KindConsultation,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBook_RejectsPastDate(t *testing.T) {
	f := newFixture(t)

	tod, _ := ParseTimeOfDay("07:00") // same day as fixedNow but earlier
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:  f.patient.ID,
		FacilityID: f.facility.ID,
		Date:       DateOnly(fixedNow),
		Time:       tod,
		Kind:       KindConsultation,
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBook_RejectsUnknownKind(t *testing.T) {
	f := newFixture(t)

	tod, _ := ParseTimeOfDay("10:00")
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:  f.patient.ID,
		FacilityID: f.facility.ID,
		Date:       bookDate,
		Time:       tod,
		Kind:       Kind("surgery"),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBook_UnknownPatientAndFacility(t *testing.T) {
	f := newFixture(t)
	tod, _ := ParseTimeOfDay("10:00")

	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:  uuid.New(),
		FacilityID: f.facility.ID,
		Date:       bookDate,
		Time:       tod,
		Kind:       KindConsultation,
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.Book(context.Background(), BookRequest{
		PatientID:  f.patient.ID,
		FacilityID: uuid.New(),
		Date:       bookDate,
		Time:       tod,
		Kind:       KindConsultation,
	})
	assert.ErrorIs(t, err, ErrFacilityNotFound)
}

// N concurrent bookings for the same slot: exactly one succeeds, the rest
// fail with ErrSlotTaken.
func TestBook_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	tod, _ := ParseTimeOfDay("11:00")

	const n = 50

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), BookRequest{
				PatientID:  f.patient.ID,
				FacilityID: f.facility.ID,
				Date:       bookDate,
				Time:       tod,
				Kind:       KindConsultation,
			})
		}(i)
	}
	wg.Wait()

	var won, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrSlotTaken):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, conflicted)
}

// -------------------------
// Availability
// -------------------------

func TestAvailableSlots_ExcludesActiveHolders(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.patient.ID, "10:00")

	slots, err := f.svc.AvailableSlots(context.Background(), f.facility.ID, bookDate)
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, timeStrings(slots))
}

func TestAvailableSlots_CancelledSlotFreed(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "10:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.staff, "patient request")
	require.NoError(t, err)

	slots, err := f.svc.AvailableSlots(context.Background(), f.facility.ID, bookDate)
	require.NoError(t, err)

	assert.Contains(t, timeStrings(slots), "10:00")
	assert.Len(t, slots, 6)
}

// -------------------------
// Transitions
// -------------------------

func TestTransition_ConfirmSetsAttribution(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	actor := Actor{ID: f.patient.ID}
	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, actor)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedBy)
	assert.Equal(t, f.patient.ID, *confirmed.ConfirmedBy)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, fixedNow, *confirmed.ConfirmedAt)

	changed := f.notifier.byType("status_changed")
	require.Len(t, changed, 1)
	assert.Equal(t, StatusPending, changed[0].PrevStatus)
	assert.Equal(t, StatusConfirmed, changed[0].Status)
}

func TestTransition_CompleteSetsAttribution(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	completed, err := f.svc.Complete(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedBy)
	assert.Equal(t, f.staff.ID, *completed.CompletedBy)
	require.NotNil(t, completed.CompletedAt)
}

func TestTransition_CancelRequiresReason(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.staff, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	cancelled, err := f.svc.Cancel(context.Background(), appt.ID, f.staff, "clinic closed")
	require.NoError(t, err)
	assert.Equal(t, "clinic closed", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.staff.ID, *cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancelledAt)
}

func TestTransition_IllegalFromTerminal(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, f.staff, "duplicate booking")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), appt.ID, f.staff)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTransition_PendingCannotComplete(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	_, err := f.svc.Complete(context.Background(), appt.ID, f.staff)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestTransition_AccessControl(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	// Another patient may not touch it.
	_, err := f.svc.Confirm(context.Background(), appt.ID, Actor{ID: f.patient2.ID})
	assert.ErrorIs(t, err, ErrAccessDenied)

	// The owning patient may.
	_, err = f.svc.Confirm(context.Background(), appt.ID, Actor{ID: f.patient.ID})
	assert.NoError(t, err)
}

func TestTransition_NotifierFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	f.notifier.mu.Lock()
	f.notifier.fail = true
	f.notifier.mu.Unlock()

	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestTransition_RescheduledTargetRejected(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")
	_, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	// Moving into rescheduled without a new slot must not work, even though
	// the state machine allows confirmed -> rescheduled for Reschedule.
	_, err = f.svc.Transition(context.Background(), appt.ID, StatusRescheduled, f.staff, TransitionExtra{})
	assert.ErrorIs(t, err, ErrValidation)

	reloaded, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, reloaded.Status)
	assert.Equal(t, "09:00", reloaded.Time.String())
}

// -------------------------
// Reschedule
// -------------------------

func TestReschedule_MovesToNewSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")
	_, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	newTime, _ := ParseTimeOfDay("11:30")
	moved, err := f.svc.Reschedule(context.Background(), appt.ID, bookDate, newTime, f.staff)
	require.NoError(t, err)

	assert.Equal(t, StatusRescheduled, moved.Status)
	assert.Equal(t, "11:30", moved.Time.String())

	// The old slot is free again, the new one is held.
	slots, err := f.svc.AvailableSlots(context.Background(), f.facility.ID, bookDate)
	require.NoError(t, err)
	assert.Contains(t, timeStrings(slots), "09:00")
	assert.NotContains(t, timeStrings(slots), "11:30")

	// Rescheduled still needs an explicit confirm.
	confirmed, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestReschedule_ConflictLeavesOriginalUntouched(t *testing.T) {
	f := newFixture(t)

	a := f.book(t, f.patient.ID, "09:00")
	_, err := f.svc.Confirm(context.Background(), a.ID, f.staff)
	require.NoError(t, err)

	// B holds 10:00 in a non-terminal status.
	f.book(t, f.patient2.ID, "10:00")

	newTime, _ := ParseTimeOfDay("10:00")
	_, err = f.svc.Reschedule(context.Background(), a.ID, bookDate, newTime, f.staff)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// A keeps its original slot and status.
	reloaded, err := f.svc.GetAppointment(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, reloaded.Status)
	assert.Equal(t, "09:00", reloaded.Time.String())
}

func TestReschedule_PendingNotAllowed(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")

	newTime, _ := ParseTimeOfDay("10:30")
	_, err := f.svc.Reschedule(context.Background(), appt.ID, bookDate, newTime, f.staff)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestReschedule_RejectsPastSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient.ID, "09:00")
	_, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	past, _ := ParseTimeOfDay("07:00")
	_, err = f.svc.Reschedule(context.Background(), appt.ID, DateOnly(fixedNow), past, f.staff)
	assert.ErrorIs(t, err, ErrValidation)
}

// -------------------------
// Reminders
// -------------------------

func TestSendDueReminders(t *testing.T) {
	f := newFixture(t)
	f.svc.SetReminderLead(30 * 24 * time.Hour)

	appt := f.book(t, f.patient.ID, "10:00")
	_, err := f.svc.Confirm(context.Background(), appt.ID, f.staff)
	require.NoError(t, err)

	// A pending appointment must not be reminded.
	f.book(t, f.patient2.ID, "11:00")

	require.NoError(t, f.svc.SendDueReminders(context.Background()))

	due := f.notifier.byType("reminder_due")
	require.Len(t, due, 1)
	assert.Equal(t, appt.ID, due[0].AppointmentID)

	// A second sweep sends nothing new.
	require.NoError(t, f.svc.SendDueReminders(context.Background()))
	assert.Len(t, f.notifier.byType("reminder_due"), 1)

	reloaded, err := f.svc.GetAppointment(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.ReminderSent)
	require.NotNil(t, reloaded.LastReminderSentAt)
}

// -------------------------
// Listings
// -------------------------

func TestListByPatientAndFacility(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.patient.ID, "09:00")
	b := f.book(t, f.patient2.ID, "09:30")

	mine, err := f.svc.ListByPatient(context.Background(), f.patient.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	all, err := f.svc.ListByFacility(context.Background(), f.facility.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	pending, err := f.svc.ListByFacility(context.Background(), f.facility.ID, ListFilter{Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

// -------------------------
// End to end
// -------------------------

func TestBookingLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// U1 books R1 at 10:00: success, pending.
	appt := f.book(t, f.patient.ID, "10:00")
	assert.Equal(t, StatusPending, appt.Status)

	// U1 confirms: confirmedAt set.
	confirmed, err := f.svc.Confirm(ctx, appt.ID, Actor{ID: f.patient.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	// U2 tries the same slot: conflict.
	tod, _ := ParseTimeOfDay("10:00")
	_, err = f.svc.Book(ctx, BookRequest{
		PatientID:  f.patient2.ID,
		FacilityID: f.facility.ID,
		Date:       bookDate,
		Time:       tod,
		Kind:       KindConsultation,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Staff completes the visit.
	completed, err := f.svc.Complete(ctx, appt.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// The terminal state frees the slot.
	slots, err := f.svc.AvailableSlots(ctx, f.facility.ID, bookDate)
	require.NoError(t, err)
	assert.Contains(t, timeStrings(slots), "10:00")
}
