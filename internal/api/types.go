package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

type ScheduleAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	ProviderID      string `json:"provider_id"`
	Date            string `json:"date"`       // YYYY-MM-DD
	StartTime       string `json:"start_time"` // HH:MM
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	AppointmentType string `json:"appointment_type"`
	ReasonForVisit  string `json:"reason_for_visit,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type CancelRequest struct {
	Reason    string `json:"reason"`
	ByPatient bool   `json:"by_patient"`
}

type RescheduleRequest struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID            `json:"id"`
	Number             string               `json:"appointment_number"`
	PatientID          uuid.UUID            `json:"patient_id"`
	ProviderID         uuid.UUID            `json:"provider_id"`
	Slot               appointment.SlotView `json:"slot"`
	Type               string               `json:"appointment_type"`
	Status             string               `json:"status"`
	ReasonForVisit     string               `json:"reason_for_visit,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CancellationReason string               `json:"cancellation_reason,omitempty"`
	CancelledByPatient bool                 `json:"cancelled_by_patient,omitempty"`
	CheckedInAt        *time.Time           `json:"checked_in_at,omitempty"`
	CheckInNotes       string               `json:"check_in_notes,omitempty"`
	StartedAt          *time.Time           `json:"started_at,omitempty"`
	CheckedOutAt       *time.Time           `json:"checked_out_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
	CompletionNotes    string               `json:"completion_notes,omitempty"`
	NoShowAt           *time.Time           `json:"no_show_at,omitempty"`
	RescheduledAt      *time.Time           `json:"rescheduled_at,omitempty"`
	RescheduleCount    int                  `json:"reschedule_count"`
	Version            int                  `json:"version"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// SummaryResponse adds participant display fields; they are omitted when the
// lookup had nothing to offer.
type SummaryResponse struct {
	AppointmentResponse
	PatientName         string `json:"patient_name,omitempty"`
	MedicalRecordNumber string `json:"medical_record_number,omitempty"`
	ProviderName        string `json:"provider_name,omitempty"`
	ProviderSpecialty   string `json:"provider_specialty,omitempty"`
}

type ListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Count        int                   `json:"count"`
}

type AvailabilityResponse struct {
	ProviderID uuid.UUID            `json:"provider_id"`
	Slot       appointment.SlotView `json:"slot"`
	Available  bool                 `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		Number:             a.Number,
		PatientID:          a.PatientID,
		ProviderID:         a.ProviderID,
		Slot:               a.Slot.View(),
		Type:               string(a.Type),
		Status:             string(a.Status),
		ReasonForVisit:     a.ReasonForVisit,
		Notes:              a.Notes,
		CancelledAt:        a.CancelledAt,
		CancellationReason: a.CancellationReason,
		CancelledByPatient: a.CancelledByPatient,
		CheckedInAt:        a.CheckedInAt,
		CheckInNotes:       a.CheckInNotes,
		StartedAt:          a.StartedAt,
		CheckedOutAt:       a.CheckedOutAt,
		CompletedAt:        a.CompletedAt,
		CompletionNotes:    a.CompletionNotes,
		NoShowAt:           a.NoShowAt,
		RescheduledAt:      a.RescheduledAt,
		RescheduleCount:    a.RescheduleCount,
		Version:            a.Version,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toSummaryResponse(s *appointment.Summary) SummaryResponse {
	resp := SummaryResponse{AppointmentResponse: toResponse(s.Appointment)}
	if s.Patient != nil {
		resp.PatientName = s.Patient.Name
		resp.MedicalRecordNumber = s.Patient.MedicalRecordNumber
	}
	if s.Provider != nil {
		resp.ProviderName = s.Provider.Name
		resp.ProviderSpecialty = s.Provider.Specialty
	}
	return resp
}

func toListResponse(list []*appointment.Appointment) ListResponse {
	out := make([]AppointmentResponse, len(list))
	for i, a := range list {
		out[i] = toResponse(a)
	}
	return ListResponse{Appointments: out, Count: len(out)}
}
