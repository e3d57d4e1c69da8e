package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

func scheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleAppointmentRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		start, err := appointment.ParseClock(req.StartTime)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		typ, err := appointment.ParseType(req.AppointmentType)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		appt, err := svc.Schedule(r.Context(), appointment.ScheduleRequest{
			PatientID:       patientID,
			ProviderID:      providerID,
			Date:            date,
			StartTime:       start,
			DurationMinutes: req.DurationMinutes,
			Type:            typ,
			ReasonForVisit:  req.ReasonForVisit,
			Notes:           req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(appt))
	}
}

type command func(ctx context.Context, id uuid.UUID, r *http.Request) (*appointment.Appointment, error)

// commandHandler runs a lifecycle command against the appointment in the path.
func commandHandler(run command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "appointment_id")
		if !ok {
			return
		}

		appt, err := run(r.Context(), id, r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(appt))
	}
}

func confirmCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, _ *http.Request) (*appointment.Appointment, error) {
		return svc.Confirm(ctx, id)
	}
}

func checkInCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, r *http.Request) (*appointment.Appointment, error) {
		var req NotesRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, badBody(err)
		}
		return svc.CheckIn(ctx, id, req.Notes)
	}
}

func startCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, _ *http.Request) (*appointment.Appointment, error) {
		return svc.Start(ctx, id)
	}
}

func completeCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, r *http.Request) (*appointment.Appointment, error) {
		var req NotesRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, badBody(err)
		}
		return svc.Complete(ctx, id, req.Notes)
	}
}

func cancelCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, r *http.Request) (*appointment.Appointment, error) {
		var req CancelRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, badBody(err)
		}
		return svc.Cancel(ctx, id, req.Reason, req.ByPatient)
	}
}

func noShowCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, _ *http.Request) (*appointment.Appointment, error) {
		return svc.MarkNoShow(ctx, id)
	}
}

func rescheduleCommand(svc *appointment.Service) command {
	return func(ctx context.Context, id uuid.UUID, r *http.Request) (*appointment.Appointment, error) {
		var req RescheduleRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, badBody(err)
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			return nil, err
		}
		start, err := appointment.ParseClock(req.StartTime)
		if err != nil {
			return nil, err
		}
		return svc.Reschedule(ctx, id, date, start, req.DurationMinutes)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "appointment_id")
		if !ok {
			return
		}

		sum, err := svc.GetSummary(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSummaryResponse(sum))
	}
}

func getByNumberHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.GetByNumber(r.Context(), chi.URLParam(r, "number"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toResponse(appt))
	}
}

// searchAppointmentsHandler serves GET /appointments with optional filters:
// patient_id, provider_id, from, to, type, status (comma separated), limit, offset.
func searchAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := parseCriteria(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		list, err := svc.Search(r.Context(), c)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(list))
	}
}

func upcomingHandler(svc *appointment.Service, max int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := queryInt(r, "limit", max)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if limit > max {
			limit = max
		}

		list, err := svc.Upcoming(r.Context(), limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(list))
	}
}

func providerTodayHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "provider_id")
		if !ok {
			return
		}

		list, err := svc.TodaysAppointments(r.Context(), providerID)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toListResponse(list))
	}
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "provider_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		date, err := appointment.ParseDate(q.Get("date"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		start, err := appointment.ParseClock(q.Get("start"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		duration, err := queryInt(r, "duration", 0)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		free, err := svc.IsSlotAvailable(r.Context(), providerID, date, start, duration)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		slot, _ := appointment.NewTimeSlot(date, start, duration)
		writeJSON(w, http.StatusOK, AvailabilityResponse{ProviderID: providerID, Slot: slot.View(), Available: free})
	}
}

func parseCriteria(r *http.Request) (appointment.Criteria, error) {
	q := r.URL.Query()
	var c appointment.Criteria

	var err error
	if c.PatientID, err = queryUUID(r, "patient_id"); err != nil {
		return c, err
	}
	if c.ProviderID, err = queryUUID(r, "provider_id"); err != nil {
		return c, err
	}
	if v := q.Get("from"); v != "" {
		if c.From, err = appointment.ParseDate(v); err != nil {
			return c, err
		}
	}
	if v := q.Get("to"); v != "" {
		if c.To, err = appointment.ParseDate(v); err != nil {
			return c, err
		}
	}
	if v := q.Get("type"); v != "" {
		if c.Type, err = appointment.ParseType(v); err != nil {
			return c, err
		}
	}
	if v := q.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			s, err := appointment.ParseStatus(raw)
			if err != nil {
				return c, err
			}
			c.Statuses = append(c.Statuses, s)
		}
	}
	if c.Limit, err = queryInt(r, "limit", 0); err != nil {
		return c, err
	}
	if c.Offset, err = queryInt(r, "offset", 0); err != nil {
		return c, err
	}
	return c, nil
}

func queryUUID(r *http.Request, key string) (uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, invalidParam(key, "must be a valid UUID")
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalidParam(key, "must be a non-negative integer")
	}
	return n, nil
}
