package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebridge/healthplan-backend/internal/appointment"
	"github.com/carebridge/healthplan-backend/internal/sequence"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// actorFromRequest reads the caller identity placed on the request by the
// auth layer in front of this service. Authentication itself is out of
// scope here; the gateway verifies the token and forwards these headers.
func actorFromRequest(r *http.Request) (appointment.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return appointment.Actor{}, false
	}
	return appointment.Actor{
		ID:    id,
		Staff: r.Header.Get("X-Actor-Role") == "staff",
	}, true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facilityID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "id must be a valid UUID")
			return
		}
		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), facilityID, date)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]string, 0, len(slots))
		for _, s := range slots {
			out = append(out, s.String())
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			FacilityID: facilityID,
			Date:       date.Format("2006-01-02"),
			Slots:      out,
		})
	}
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		facilityID, err := uuid.Parse(req.FacilityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		timeOfDay, err := appointment.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:  patientID,
			FacilityID: facilityID,
			Date:       date,
			Time:       timeOfDay,
			Kind:       appointment.Kind(req.Kind),
			Reason:     req.Reason,
			Notes:      req.Notes,
			Duration:   req.Duration,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := appointment.ListFilter{
			Status: appointment.Status(q.Get("status")),
		}
		if v := q.Get("from"); v != "" {
			if d, err := parseDate(v); err == nil {
				filter.From = d
			}
		}
		if v := q.Get("to"); v != "" {
			if d, err := parseDate(v); err == nil {
				filter.To = d
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		var (
			appts []appointment.Appointment
			err   error
		)
		switch {
		case q.Get("patient_id") != "":
			var patientID uuid.UUID
			patientID, err = uuid.Parse(q.Get("patient_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPatient(r.Context(), patientID, filter)
		case q.Get("facility_id") != "":
			var facilityID uuid.UUID
			facilityID, err = uuid.Parse(q.Get("facility_id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_facility_id", "facility_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByFacility(r.Context(), facilityID, filter)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or facility_id is required")
			return
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return withActorAndID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor appointment.Actor) {
		appt, err := svc.Confirm(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	})
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return withActorAndID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor appointment.Actor) {
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actor, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	})
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return withActorAndID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor appointment.Actor) {
		appt, err := svc.Complete(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	})
}

func transitionAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return withActorAndID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor appointment.Actor) {
		var req TransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Transition(r.Context(), id, appointment.Status(req.Status), actor, appointment.TransitionExtra{
			CancellationReason: req.Reason,
			Notes:              req.Notes,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	})
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return withActorAndID(func(w http.ResponseWriter, r *http.Request, id uuid.UUID, actor appointment.Actor) {
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		timeOfDay, err := appointment.ParseTimeOfDay(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, timeOfDay, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	})
}

func issueNumberHandler(gen sequence.Generator, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IssueNumberRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		period := req.Period
		if period == "" {
			period = sequence.PeriodKey(now())
		}

		number, err := gen.Next(r.Context(), sequence.Kind(req.Kind), period)
		if err != nil {
			switch {
			case errors.Is(err, sequence.ErrUnknownKind):
				writeError(w, http.StatusBadRequest, "unknown_document_kind", err.Error())
			case errors.Is(err, sequence.ErrContention):
				writeError(w, http.StatusServiceUnavailable, "numbering_unavailable", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusCreated, IssueNumberResponse{Number: number})
	}
}

func withActorAndID(fn func(http.ResponseWriter, *http.Request, uuid.UUID, appointment.Actor)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
			return
		}
		fn(w, r, id, actor)
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrFacilityNotFound):
		writeError(w, http.StatusNotFound, "facility_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "this time slot is already booked, please choose another time")
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "illegal_transition", "this appointment cannot be updated in its current state")
	case errors.Is(err, appointment.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
