package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `
	id, patient_id, facility_id, date, time_minutes, kind, reason,
	duration_minutes, status, notes, cancellation_reason,
	cancelled_by, cancelled_at, confirmed_by, confirmed_at,
	completed_by, completed_at, reminder_sent, last_reminder_sent_at,
	created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var timeMinutes int

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.FacilityID,
		&a.Date,
		&timeMinutes,
		&a.Kind,
		&a.Reason,
		&a.Duration,
		&a.Status,
		&a.Notes,
		&a.CancellationReason,
		&a.CancelledBy,
		&a.CancelledAt,
		&a.ConfirmedBy,
		&a.ConfirmedAt,
		&a.CompletedBy,
		&a.CompletedAt,
		&a.ReminderSent,
		&a.LastReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = TimeOfDay(timeMinutes)
	return &a, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

// hoursDoc is the persisted shape of a facility's weekly hours, one entry
// per weekday name, nulls meaning closed.
type hoursDoc map[string]*struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func decodeHours(raw []byte) ([7]*DayHours, error) {
	var hours [7]*DayHours
	if len(raw) == 0 {
		return hours, nil
	}

	var doc hoursDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return hours, fmt.Errorf("decode working hours: %w", err)
	}

	for i, name := range weekdayNames {
		day, ok := doc[name]
		if !ok || day == nil || day.Open == "" || day.Close == "" {
			continue
		}
		open, err := ParseTimeOfDay(day.Open)
		if err != nil {
			return hours, fmt.Errorf("working hours %s open: %w", name, err)
		}
		closeAt, err := ParseTimeOfDay(day.Close)
		if err != nil {
			return hours, fmt.Errorf("working hours %s close: %w", name, err)
		}
		hours[i] = &DayHours{Open: open, Close: closeAt}
	}

	return hours, nil
}

// EncodeHours serializes a weekly schedule to its JSONB form. Shared with
// the seed command.
func EncodeHours(hours [7]*DayHours) ([]byte, error) {
	doc := make(map[string]any, 7)
	for i, name := range weekdayNames {
		if hours[i] == nil {
			doc[name] = map[string]any{"open": nil, "close": nil}
			continue
		}
		doc[name] = map[string]string{
			"open":  hours[i].Open.String(),
			"close": hours[i].Close.String(),
		}
	}
	return json.Marshal(doc)
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "active_slot")
	}
	return false
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetFacilityByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility
	var rawHours []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, address, phone, working_hours, slot_minutes, created_at, updated_at
		FROM facilities
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Name, &f.Address, &f.Phone, &rawHours, &f.SlotMinutes, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFacilityNotFound
		}
		return nil, err
	}

	f.Hours, err = decodeHours(rawHours)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveTimes(ctx context.Context, facilityID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_minutes
		FROM appointments
		WHERE facility_id = $1
		  AND date = $2
		  AND status IN ('pending', 'confirmed', 'rescheduled')
		ORDER BY time_minutes
	`, facilityID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []TimeOfDay
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		times = append(times, TimeOfDay(m))
	}
	return times, rows.Err()
}

func (r *PgRepository) HasActiveAppointment(ctx context.Context, facilityID uuid.UUID, date time.Time, t TimeOfDay, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE facility_id = $1
			  AND date = $2
			  AND time_minutes = $3
			  AND status IN ('pending', 'confirmed', 'rescheduled')
			  AND id <> $4
		)
	`, facilityID, date, int(t), excludeID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, facility_id, date, time_minutes, kind, reason,
			duration_minutes, status, notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.FacilityID, a.Date, int(a.Time), a.Kind, a.Reason,
		a.Duration, a.Status, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, from Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $3,
		    time_minutes = $4,
		    status = $5,
		    notes = $6,
		    cancellation_reason = $7,
		    cancelled_by = $8,
		    cancelled_at = $9,
		    confirmed_by = $10,
		    confirmed_at = $11,
		    completed_by = $12,
		    completed_at = $13,
		    reminder_sent = $14,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns+`
	`, a.ID, from, a.Date, int(a.Time), a.Status, a.Notes,
		a.CancellationReason, a.CancelledBy, a.CancelledAt,
		a.ConfirmedBy, a.ConfirmedAt, a.CompletedBy, a.CompletedAt,
		a.ReminderSent)

	updated, err := scanAppointment(row)
	if err != nil {
		if isActiveSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		if errors.Is(err, ErrAppointmentNotFound) {
			// The row was loaded moments ago, so a miss here means the
			// compare-and-swap on status lost.
			return nil, ErrStaleStatus
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter) ([]Appointment, error) {
	return r.list(ctx, "patient_id", patientID, f)
}

func (r *PgRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID, f ListFilter) ([]Appointment, error) {
	return r.list(ctx, "facility_id", facilityID, f)
}

func (r *PgRepository) list(ctx context.Context, keyColumn string, key uuid.UUID, f ListFilter) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + keyColumn + ` = $1`
	args := []any{key}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}

	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY date, time_minutes LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) FindReminderDue(ctx context.Context, from, until time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND reminder_sent = false
		  AND date + make_interval(mins => time_minutes) BETWEEN $1 AND $2
		ORDER BY date, time_minutes
	`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = true,
		    last_reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}
