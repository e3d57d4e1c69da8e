package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is the booking aggregate. Status and slot change only through
// the transition methods below; each successful transition raises exactly one
// pending event which the service drains after the write commits.
type Appointment struct {
	ID             uuid.UUID
	Number         string
	PatientID      uuid.UUID
	ProviderID     uuid.UUID
	Slot           TimeSlot
	Type           AppointmentType
	Status         Status
	ReasonForVisit string
	Notes          string

	CancelledAt        *time.Time
	CancellationReason string
	CancelledByPatient bool
	CheckedInAt        *time.Time
	CheckInNotes       string
	StartedAt          *time.Time
	CheckedOutAt       *time.Time
	CompletedAt        *time.Time
	CompletionNotes    string
	NoShowAt           *time.Time
	RescheduledAt      *time.Time
	RescheduleCount    int

	// Version increments on every committed write and guards against lost updates.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	events []Event
}

// New creates an appointment in StatusScheduled and raises its scheduled event.
func New(number string, patientID, providerID uuid.UUID, slot TimeSlot, typ AppointmentType, reason, notes string, now time.Time) *Appointment {
	a := &Appointment{
		ID:             uuid.New(),
		Number:         number,
		PatientID:      patientID,
		ProviderID:     providerID,
		Slot:           slot,
		Type:           typ,
		Status:         StatusScheduled,
		ReasonForVisit: reason,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	a.raise(EventScheduled, now, nil)
	return a
}

func (a *Appointment) Confirm(now time.Time) error {
	to, err := guard(a.Status, OpConfirm)
	if err != nil {
		return err
	}
	a.Status = to
	a.UpdatedAt = now
	a.raise(EventConfirmed, now, nil)
	return nil
}

func (a *Appointment) CheckIn(notes string, now time.Time) error {
	to, err := guard(a.Status, OpCheckIn)
	if err != nil {
		return err
	}
	a.Status = to
	a.CheckedInAt = &now
	a.CheckInNotes = notes
	a.UpdatedAt = now
	a.raise(EventCheckedIn, now, func(ev *Event) { ev.Notes = notes })
	return nil
}

func (a *Appointment) Start(now time.Time) error {
	to, err := guard(a.Status, OpStart)
	if err != nil {
		return err
	}
	a.Status = to
	a.StartedAt = &now
	a.UpdatedAt = now
	a.raise(EventStarted, now, nil)
	return nil
}

// Complete closes the visit and records check-out at the same instant.
func (a *Appointment) Complete(notes string, now time.Time) error {
	to, err := guard(a.Status, OpComplete)
	if err != nil {
		return err
	}
	a.Status = to
	a.CompletedAt = &now
	a.CheckedOutAt = &now
	a.CompletionNotes = notes
	a.UpdatedAt = now
	a.raise(EventCompleted, now, func(ev *Event) { ev.Notes = notes })
	return nil
}

func (a *Appointment) Cancel(reason string, byPatient bool, now time.Time) error {
	to, err := guard(a.Status, OpCancel)
	if err != nil {
		return err
	}
	a.Status = to
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.CancelledByPatient = byPatient
	a.UpdatedAt = now
	a.raise(EventCancelled, now, func(ev *Event) {
		ev.Reason = reason
		ev.ByPatient = &byPatient
	})
	return nil
}

func (a *Appointment) MarkNoShow(now time.Time) error {
	to, err := guard(a.Status, OpNoShow)
	if err != nil {
		return err
	}
	a.Status = to
	a.NoShowAt = &now
	a.UpdatedAt = now
	a.raise(EventNoShow, now, nil)
	return nil
}

// Reschedule swaps in slot and returns the appointment to scheduled, so a
// confirmed booking has to be confirmed again for its new time. The caller is
// responsible for the conflict check.
func (a *Appointment) Reschedule(slot TimeSlot, now time.Time) error {
	to, err := guard(a.Status, OpReschedule)
	if err != nil {
		return err
	}
	if slot.IsZero() {
		return &InvalidSlotError{Reason: "new slot is required"}
	}
	previous := a.Slot.View()
	a.Slot = slot
	a.Status = to
	a.RescheduledAt = &now
	a.RescheduleCount++
	a.UpdatedAt = now
	a.raise(EventRescheduled, now, func(ev *Event) { ev.PreviousSlot = &previous })
	return nil
}

// PendingEvents returns the events raised since the last ClearEvents.
func (a *Appointment) PendingEvents() []Event {
	if len(a.events) == 0 {
		return nil
	}
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

func (a *Appointment) ClearEvents() { a.events = nil }

// Clone returns a deep copy, pending events included.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.events = a.PendingEvents()
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.CheckedInAt = cloneTime(a.CheckedInAt)
	c.StartedAt = cloneTime(a.StartedAt)
	c.CheckedOutAt = cloneTime(a.CheckedOutAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.NoShowAt = cloneTime(a.NoShowAt)
	c.RescheduledAt = cloneTime(a.RescheduledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
