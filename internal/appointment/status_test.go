package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress,
	StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled,
}

func TestCanApplyTable(t *testing.T) {
	allowed := map[Operation][]Status{
		OpConfirm:    {StatusScheduled},
		OpCheckIn:    {StatusScheduled, StatusConfirmed},
		OpStart:      {StatusCheckedIn},
		OpComplete:   {StatusCheckedIn, StatusInProgress},
		OpCancel:     {StatusScheduled, StatusConfirmed},
		OpNoShow:     {StatusScheduled, StatusConfirmed, StatusCheckedIn, StatusInProgress},
		OpReschedule: {StatusScheduled, StatusConfirmed},
	}
	require.Len(t, allowed, len(Operations))

	for _, op := range Operations {
		for _, s := range allStatuses {
			want := false
			for _, from := range allowed[op] {
				if from == s {
					want = true
				}
			}
			assert.Equalf(t, want, CanApply(s, op), "%s from %s", op, s)
		}
	}
}

func TestTerminalStatusesRejectEverything(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsActive())
		for _, op := range Operations {
			_, err := guard(s, op)
			assert.ErrorIs(t, err, ErrInvalidStateTransition)
		}
	}
}

func TestGuardReportsStatusAndOperation(t *testing.T) {
	_, err := guard(StatusCheckedIn, OpCancel)
	var tErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusCheckedIn, tErr.Status)
	assert.Equal(t, OpCancel, tErr.Operation)
}

func TestParseStatusAndType(t *testing.T) {
	s, err := ParseStatus(" Confirmed ")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)

	_, err = ParseStatus("pending")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	typ, err := ParseType("procedure")
	require.NoError(t, err)
	assert.Equal(t, 60, typ.DefaultDuration())

	_, err = ParseType("surgery")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, AppointmentType("surgery").DefaultDuration())
}
