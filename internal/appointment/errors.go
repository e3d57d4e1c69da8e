package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidSlot            = errors.New("invalid time slot")
	ErrInvalidStateTransition = errors.New("invalid status transition")
	ErrTimeSlotConflict       = errors.New("time slot conflicts with an existing booking")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrConcurrentUpdate       = errors.New("appointment was modified concurrently, reload and retry")
	ErrUnavailable            = errors.New("scheduling storage unavailable")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrPatientNotFound        = errors.New("patient not found")
	ErrProviderNotFound       = errors.New("provider not found")
)

// InvalidSlotError reports a malformed slot: missing date or time, or a
// non-positive duration.
type InvalidSlotError struct {
	Reason string
}

func (e *InvalidSlotError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSlot, e.Reason)
}

func (e *InvalidSlotError) Is(target error) bool { return target == ErrInvalidSlot }

// InvalidStateTransitionError is returned when an operation's guard rejects
// the appointment's current status.
type InvalidStateTransitionError struct {
	Status    Status
	Operation Operation
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s an appointment in status %s", ErrInvalidStateTransition, e.Operation, e.Status)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// TimeSlotConflictError means the provider already holds an active booking
// overlapping the requested slot.
type TimeSlotConflictError struct {
	ProviderID    uuid.UUID
	Slot          TimeSlot
	ConflictingID uuid.UUID
}

func (e *TimeSlotConflictError) Error() string {
	return fmt.Sprintf("%s: provider %s on %s at %s-%s",
		ErrTimeSlotConflict, e.ProviderID, e.Slot.Date().Format(dateLayout), e.Slot.Start(), e.Slot.End())
}

func (e *TimeSlotConflictError) Is(target error) bool { return target == ErrTimeSlotConflict }

// UnavailableError wraps infrastructure failures (storage, lock backend).
// The aggregate is left unchanged whenever one is returned.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrAppointmentNotFound, key)
}
