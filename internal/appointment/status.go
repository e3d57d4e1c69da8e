package appointment

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checked_in"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"

	// StatusRescheduled is accepted when reading stored history. Reschedule
	// itself returns the appointment to StatusScheduled with the new slot.
	StatusRescheduled Status = "rescheduled"
)

// ActiveStatuses are the statuses whose slots must stay conflict-free.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress}

func (s Status) IsActive() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, raw)
}

type Operation string

const (
	OpConfirm    Operation = "confirm"
	OpCheckIn    Operation = "check_in"
	OpStart      Operation = "start"
	OpComplete   Operation = "complete"
	OpCancel     Operation = "cancel"
	OpNoShow     Operation = "mark_no_show"
	OpReschedule Operation = "reschedule"
)

// Operations lists every lifecycle operation guarded by the transition table.
var Operations = []Operation{OpConfirm, OpCheckIn, OpStart, OpComplete, OpCancel, OpNoShow, OpReschedule}

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Operation]transition{
	OpConfirm:    {from: []Status{StatusScheduled}, to: StatusConfirmed},
	OpCheckIn:    {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusCheckedIn},
	OpStart:      {from: []Status{StatusCheckedIn}, to: StatusInProgress},
	OpComplete:   {from: []Status{StatusCheckedIn, StatusInProgress}, to: StatusCompleted},
	OpCancel:     {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusCancelled},
	OpNoShow:     {from: ActiveStatuses, to: StatusNoShow},
	OpReschedule: {from: []Status{StatusScheduled, StatusConfirmed}, to: StatusScheduled},
}

// CanApply reports whether op is legal from status s.
func CanApply(s Status, op Operation) bool {
	t, ok := transitions[op]
	if !ok {
		return false
	}
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

func guard(s Status, op Operation) (Status, error) {
	if !CanApply(s, op) {
		return s, &InvalidStateTransitionError{Status: s, Operation: op}
	}
	return transitions[op].to, nil
}

// AppointmentType classifies a visit and supplies its default length.
type AppointmentType string

const (
	TypeConsultation   AppointmentType = "consultation"
	TypeFollowUp       AppointmentType = "follow_up"
	TypeRoutineCheckup AppointmentType = "routine_checkup"
	TypeProcedure      AppointmentType = "procedure"
	TypeEmergency      AppointmentType = "emergency"
	TypeTelehealth     AppointmentType = "telehealth"
	TypeVaccination    AppointmentType = "vaccination"
	TypeLabWork        AppointmentType = "lab_work"
)

var defaultDurations = map[AppointmentType]int{
	TypeConsultation:   30,
	TypeFollowUp:       15,
	TypeRoutineCheckup: 30,
	TypeProcedure:      60,
	TypeEmergency:      45,
	TypeTelehealth:     20,
	TypeVaccination:    15,
	TypeLabWork:        15,
}

// DefaultDuration returns the type's default length in minutes, or 0 for an
// unknown type.
func (t AppointmentType) DefaultDuration() int {
	return defaultDurations[t]
}

func ParseType(raw string) (AppointmentType, error) {
	t := AppointmentType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := defaultDurations[t]; !ok {
		return "", fmt.Errorf("%w: unknown appointment type %q", ErrInvalidRequest, raw)
	}
	return t, nil
}
