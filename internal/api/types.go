package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carebridge/healthplan-backend/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	FacilityID string `json:"facility_id"`
	Date       string `json:"date"` // 2006-01-02
	Time       string `json:"time"` // 15:04
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Duration   int    `json:"duration_minutes,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type TransitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type IssueNumberRequest struct {
	Kind   string `json:"kind"`
	Period string `json:"period,omitempty"` // YYMM; defaults to current month
}

type IssueNumberResponse struct {
	Number string `json:"number"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	FacilityID         uuid.UUID  `json:"facility_id"`
	Date               string     `json:"date"`
	Time               string     `json:"time"`
	Kind               string     `json:"kind"`
	Reason             string     `json:"reason,omitempty"`
	Duration           int        `json:"duration_minutes"`
	Status             string     `json:"status"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		FacilityID:         a.FacilityID,
		Date:               a.Date.Format("2006-01-02"),
		Time:               a.Time.String(),
		Kind:               string(a.Kind),
		Reason:             a.Reason,
		Duration:           a.Duration,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CancelledAt:        a.CancelledAt,
		ConfirmedAt:        a.ConfirmedAt,
		CompletedAt:        a.CompletedAt,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

type SlotsResponse struct {
	FacilityID uuid.UUID `json:"facility_id"`
	Date       string    `json:"date"`
	Slots      []string  `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
