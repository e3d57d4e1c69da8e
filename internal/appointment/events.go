package appointment

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventScheduled   EventType = "appointment.scheduled"
	EventConfirmed   EventType = "appointment.confirmed"
	EventCheckedIn   EventType = "appointment.checked_in"
	EventStarted     EventType = "appointment.started"
	EventCompleted   EventType = "appointment.completed"
	EventCancelled   EventType = "appointment.cancelled"
	EventNoShow      EventType = "appointment.no_show"
	EventRescheduled EventType = "appointment.rescheduled"
)

// SlotView is the wire form of a TimeSlot.
type SlotView struct {
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (s TimeSlot) View() SlotView {
	return SlotView{
		Date:            s.date.Format(dateLayout),
		StartTime:       s.start.String(),
		EndTime:         s.end.String(),
		DurationMinutes: s.duration,
	}
}

// Event is a domain event raised by a single lifecycle transition.
// Only the fields relevant to Type are populated.
type Event struct {
	ID                uuid.UUID `json:"id"`
	Type              EventType `json:"type"`
	AppointmentID     uuid.UUID `json:"appointment_id"`
	AppointmentNumber string    `json:"appointment_number"`
	PatientID         uuid.UUID `json:"patient_id"`
	ProviderID        uuid.UUID `json:"provider_id"`
	Status            Status    `json:"status"`
	OccurredAt        time.Time `json:"occurred_at"`

	Slot         SlotView  `json:"slot"`
	PreviousSlot *SlotView `json:"previous_slot,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ByPatient    *bool     `json:"by_patient,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

func (a *Appointment) raise(t EventType, now time.Time, fill func(*Event)) {
	ev := Event{
		ID:                uuid.New(),
		Type:              t,
		AppointmentID:     a.ID,
		AppointmentNumber: a.Number,
		PatientID:         a.PatientID,
		ProviderID:        a.ProviderID,
		Status:            a.Status,
		OccurredAt:        now,
		Slot:              a.Slot.View(),
	}
	if fill != nil {
		fill(&ev)
	}
	a.events = append(a.events, ev)
}
