// Package notify delivers post-commit appointment events to whoever cares
// about them. Delivery is best effort and at most once: the state change is
// already committed by the time a notifier runs, so a failed delivery is
// logged by the caller and never escalated.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/carebridge/healthplan-backend/internal/appointment"
)

const (
	EventBookingCreated = "appointment.booking_created"
	EventStatusChanged  = "appointment.status_changed"
	EventReminderDue    = "appointment.reminder_due"
)

// Event is the wire shape of every outbound notification.
type Event struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	FacilityID    string `json:"facility_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	PrevStatus    string `json:"prev_status,omitempty"`
}

func eventFor(typ string, a *appointment.Appointment) Event {
	return Event{
		Type:          typ,
		AppointmentID: a.ID.String(),
		PatientID:     a.PatientID.String(),
		FacilityID:    a.FacilityID.String(),
		Date:          a.Date.Format("2006-01-02"),
		Time:          a.Time.String(),
		Status:        string(a.Status),
	}
}

// LogNotifier writes events to the structured log. The default sink when no
// broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) emit(ev Event) error {
	n.log.Info().
		Str("type", ev.Type).
		Str("appointment_id", ev.AppointmentID).
		Str("patient_id", ev.PatientID).
		Str("facility_id", ev.FacilityID).
		Str("date", ev.Date).
		Str("time", ev.Time).
		Str("status", ev.Status).
		Str("prev_status", ev.PrevStatus).
		Msg("notification")
	return nil
}

func (n *LogNotifier) BookingCreated(ctx context.Context, a *appointment.Appointment) error {
	return n.emit(eventFor(EventBookingCreated, a))
}

func (n *LogNotifier) StatusChanged(ctx context.Context, a *appointment.Appointment, previous appointment.Status) error {
	ev := eventFor(EventStatusChanged, a)
	ev.PrevStatus = string(previous)
	return n.emit(ev)
}

func (n *LogNotifier) ReminderDue(ctx context.Context, a *appointment.Appointment) error {
	return n.emit(eventFor(EventReminderDue, a))
}
