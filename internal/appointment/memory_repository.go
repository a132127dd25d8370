package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository. It honors the
// same active-slot uniqueness guarantee as the Postgres repository, which
// makes it usable both for tests and for local runs without a database.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	facilities   map[uuid.UUID]Facility
	appointments map[uuid.UUID]Appointment
	activeSlots  map[string]uuid.UUID // slot key -> holder, non-terminal only
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		facilities:   make(map[uuid.UUID]Facility),
		appointments: make(map[uuid.UUID]Appointment),
		activeSlots:  make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) PutPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) PutFacility(f Facility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facilities[f.ID] = f
}

func (r *MemoryRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.facilities[id]
	if !ok {
		return nil, ErrFacilityNotFound
	}
	return &f, nil
}

func (r *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListActiveTimes(ctx context.Context, facilityID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var times []TimeOfDay
	for _, a := range r.appointments {
		if a.FacilityID == facilityID && a.Date.Equal(date) && !a.Status.Terminal() {
			times = append(times, a.Time)
		}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times, nil
}

func (r *MemoryRepository) HasActiveAppointment(ctx context.Context, facilityID uuid.UUID, date time.Time, t TimeOfDay, excludeID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, ok := r.activeSlots[SlotKey(facilityID, date, t)]
	return ok && holder != excludeID, nil
}

func (r *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := a.SlotKey()
	if _, held := r.activeSlots[key]; held {
		return nil, ErrSlotTaken
	}

	stored := *a
	r.appointments[stored.ID] = stored
	if !stored.Status.Terminal() {
		r.activeSlots[key] = stored.ID
	}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment, from Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.Status != from {
		return nil, ErrStaleStatus
	}

	newKey := a.SlotKey()
	if !a.Status.Terminal() {
		if holder, held := r.activeSlots[newKey]; held && holder != a.ID {
			return nil, ErrSlotTaken
		}
	}

	delete(r.activeSlots, current.SlotKey())

	stored := *a
	r.appointments[stored.ID] = stored
	if !stored.Status.Terminal() {
		r.activeSlots[newKey] = stored.ID
	}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Appointment, error) {
	return r.listWhere(f, func(a Appointment) bool { return a.PatientID == patientID })
}

func (r *MemoryRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID, f ListFilter) ([]Appointment, error) {
	return r.listWhere(f, func(a Appointment) bool { return a.FacilityID == facilityID })
}

func (r *MemoryRepository) listWhere(f ListFilter, match func(Appointment) bool) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if !match(a) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) FindReminderDue(ctx context.Context, from, until time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusConfirmed || a.ReminderSent {
			continue
		}
		start := a.Time.At(a.Date)
		if start.Before(from) || start.After(until) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *MemoryRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	sent := at
	a.ReminderSent = true
	a.LastReminderSentAt = &sent
	r.appointments[id] = a
	return nil
}
