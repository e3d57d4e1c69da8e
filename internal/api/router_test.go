package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/care-scheduling/internal/appointment"
	"github.com/hackgods/care-scheduling/internal/metrics"
)

type testServer struct {
	handler  http.Handler
	dir      *appointment.MemoryDirectory
	patient  uuid.UUID
	provider uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	dir := appointment.NewMemoryDirectory()
	reg := prometheus.NewRegistry()
	svc := appointment.NewService(appointment.NewMemoryRepository(), nil, nil, nil, zerolog.Nop()).
		WithLookups(dir, dir).
		WithMetrics(metrics.NewSchedulingMetrics(reg)).
		WithClock(func() time.Time { return now })

	ts := &testServer{dir: dir, patient: uuid.New(), provider: uuid.New()}
	dir.AddPatient(appointment.Patient{ID: ts.patient, Name: "Mary Jackson", MedicalRecordNumber: "MRN-0042"})
	dir.AddProvider(appointment.Provider{ID: ts.provider, Name: "Dr. Okafor", Specialty: "cardiology"})

	ts.handler = NewRouter(RouterConfig{
		Service:  svc,
		Logger:   zerolog.Nop(),
		Postgres: PingFunc(func(context.Context) error { return nil }),
		Metrics:  reg,
		Env:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) schedule(t *testing.T, start string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/appointments", ScheduleAppointmentRequest{
		PatientID:       ts.patient.String(),
		ProviderID:      ts.provider.String(),
		Date:            "2025-06-01",
		StartTime:       start,
		DurationMinutes: 30,
		AppointmentType: "consultation",
		ReasonForVisit:  "palpitations",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestScheduleAndConflict(t *testing.T) {
	ts := newTestServer(t)

	created := ts.schedule(t, "09:00")
	assert.Equal(t, "scheduled", created.Status)
	assert.Equal(t, "APT-20250520-0001", created.Number)
	assert.Equal(t, "09:30", created.Slot.EndTime)

	rec := ts.do(t, http.MethodPost, "/appointments", ScheduleAppointmentRequest{
		PatientID:       uuid.NewString(),
		ProviderID:      ts.provider.String(),
		Date:            "2025-06-01",
		StartTime:       "09:15",
		AppointmentType: "consultation",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "time_slot_conflict", decode[ErrorResponse](t, rec).Error)
}

func TestScheduleRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)
	valid := func() ScheduleAppointmentRequest {
		return ScheduleAppointmentRequest{
			PatientID:       ts.patient.String(),
			ProviderID:      ts.provider.String(),
			Date:            "2025-06-01",
			StartTime:       "09:00",
			AppointmentType: "consultation",
		}
	}

	tests := []struct {
		name   string
		mutate func(r *ScheduleAppointmentRequest)
		code   string
	}{
		{"bad patient", func(r *ScheduleAppointmentRequest) { r.PatientID = "nope" }, "invalid_patient_id"},
		{"bad provider", func(r *ScheduleAppointmentRequest) { r.ProviderID = "" }, "invalid_provider_id"},
		{"bad date", func(r *ScheduleAppointmentRequest) { r.Date = "01/06/2025" }, "invalid_slot"},
		{"missing time", func(r *ScheduleAppointmentRequest) { r.StartTime = "" }, "invalid_slot"},
		{"unknown type", func(r *ScheduleAppointmentRequest) { r.AppointmentType = "surgery" }, "invalid_request"},
		{"past date", func(r *ScheduleAppointmentRequest) { r.Date = "2025-05-01" }, "invalid_slot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			rec := ts.do(t, http.MethodPost, "/appointments", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/appointments", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	created := ts.schedule(t, "09:00")
	base := "/appointments/" + created.ID.String()

	rec := ts.do(t, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode[AppointmentResponse](t, rec).Status)

	rec = ts.do(t, http.MethodPost, base+"/check-in", NotesRequest{Notes: "insurance card scanned"})
	require.Equal(t, http.StatusOK, rec.Code)
	checkedIn := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "checked_in", checkedIn.Status)
	assert.Equal(t, "insurance card scanned", checkedIn.CheckInNotes)

	rec = ts.do(t, http.MethodPost, base+"/cancel", CancelRequest{Reason: "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/complete", NotesRequest{Notes: "follow up in 6 weeks"})
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "completed", done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 5, done.Version)
}

func TestCancelAndRescheduleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	a := ts.schedule(t, "09:00")
	b := ts.schedule(t, "10:15")

	rec := ts.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/reschedule",
		RescheduleRequest{Date: "2025-06-01", StartTime: "10:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/reschedule",
		RescheduleRequest{Date: "2025-06-02", StartTime: "10:00", DurationMinutes: 45})
	require.Equal(t, http.StatusOK, rec.Code)
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "2025-06-02", moved.Slot.Date)
	assert.Equal(t, "10:45", moved.Slot.EndTime)
	assert.Equal(t, 1, moved.RescheduleCount)

	rec = ts.do(t, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel",
		CancelRequest{Reason: "patient request", ByPatient: true})
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "patient request", cancelled.CancellationReason)
	assert.True(t, cancelled.CancelledByPatient)

	rec = ts.do(t, http.MethodPost, "/appointments/"+b.ID.String()+"/no-show", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	a := ts.schedule(t, "09:00")
	ts.schedule(t, "11:00")

	rec := ts.do(t, http.MethodGet, "/appointments/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[SummaryResponse](t, rec)
	assert.Equal(t, "MRN-0042", sum.MedicalRecordNumber)
	assert.Equal(t, "Dr. Okafor", sum.ProviderName)
	assert.Equal(t, "palpitations", sum.ReasonForVisit)

	rec = ts.do(t, http.MethodGet, "/appointments/number/"+a.Number, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decode[AppointmentResponse](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments?provider_id="+ts.provider.String()+"&status=scheduled,confirmed&from=2025-06-01&to=2025-06-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListResponse](t, rec)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "09:00", list.Appointments[0].Slot.StartTime)

	rec = ts.do(t, http.MethodGet, "/appointments?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments?from=2025-06-02&to=2025-06-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/upcoming?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse](t, rec).Count)

	rec = ts.do(t, http.MethodGet, "/providers/"+ts.provider.String()+"/appointments/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListResponse](t, rec).Count)
}

func TestAvailability(t *testing.T) {
	ts := newTestServer(t)
	ts.schedule(t, "09:00")
	base := "/providers/" + ts.provider.String() + "/availability"

	rec := ts.do(t, http.MethodGet, base+"?date=2025-06-01&start=09:15&duration=15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[AvailabilityResponse](t, rec).Available)

	rec = ts.do(t, http.MethodGet, base+"?date=2025-06-01&start=09:30&duration=15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AvailabilityResponse](t, rec)
	assert.True(t, resp.Available)
	assert.Equal(t, "09:45", resp.Slot.EndTime)

	rec = ts.do(t, http.MethodGet, base+"?date=2025-06-01&start=09:30", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "ok", ready.Status)
	assert.Equal(t, "disabled", ready.Dependencies["redis"])

	ts.schedule(t, "09:00")
	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `scheduling_appointments_commands_total{operation="schedule",result="ok"} 1`)
}

func TestReadinessReportsDependencies(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		status   string
		code     int
	}{
		{"all up", up, up, "ok", http.StatusOK},
		{"redis down", up, down, "degraded", http.StatusOK},
		{"postgres down", down, up, "error", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.postgres, tt.redis, "test", "v1")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decode[ReadinessResponse](t, rec).Status)
		})
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestIDMiddleware(LoggingMiddleware(logger)(RecoveryMiddleware(logger)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
	)))

	req := httptest.NewRequest(http.MethodGet, "/explode", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), `"panic":"boom"`)
	assert.Contains(t, buf.String(), `"status":500`)
}

func TestAbortedRequestsAreNotServerErrors(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(ScheduleAppointmentRequest{
		PatientID:       ts.patient.String(),
		ProviderID:      ts.provider.String(),
		Date:            "2025-06-01",
		StartTime:       "09:00",
		AppointmentType: "consultation",
	}))
	req := httptest.NewRequest(http.MethodPost, "/appointments", &buf).WithContext(ctx)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "request_cancelled", decode[ErrorResponse](t, rec).Error)

	// Nothing was booked.
	rec = ts.do(t, http.MethodGet, "/appointments?provider_id="+ts.provider.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListResponse](t, rec).Count)
}

func TestWriteServiceErrorContextErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"cancelled", context.Canceled, "request_cancelled"},
		{"wrapped cancel", fmt.Errorf("load appointment: %w", context.Canceled), "request_cancelled"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"lock wait", &appointment.UnavailableError{Op: "acquire provider lock", Err: context.DeadlineExceeded}, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, tt.err)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}
}
