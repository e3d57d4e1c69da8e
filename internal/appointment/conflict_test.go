package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFinder struct {
	appointments []*Appointment
	err          error
}

func (f stubFinder) ListActiveByProviderAndDate(context.Context, uuid.UUID, time.Time) ([]*Appointment, error) {
	return f.appointments, f.err
}

func bookedAt(t *testing.T, providerID uuid.UUID, hh, mm, minutes int, status Status) *Appointment {
	t.Helper()
	a := New("", uuid.New(), providerID, mustSlot(t, june1, hh, mm, minutes), TypeConsultation, "", "", june1)
	a.Status = status
	a.ClearEvents()
	return a
}

func TestFindConflict(t *testing.T) {
	ctx := context.Background()
	provider := uuid.New()
	existing := bookedAt(t, provider, 9, 0, 30, StatusConfirmed)
	d := NewConflictDetector(stubFinder{appointments: []*Appointment{existing}})

	got, err := d.FindConflict(ctx, provider, mustSlot(t, june1, 9, 15, 30), uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, existing.ID, got.ID)

	got, err = d.FindConflict(ctx, provider, mustSlot(t, june1, 9, 30, 30), uuid.Nil)
	require.NoError(t, err)
	assert.Nil(t, got, "adjacent slots do not conflict")

	free, err := d.IsSlotFree(ctx, provider, mustSlot(t, june1, 9, 10, 10), existing.ID)
	require.NoError(t, err)
	assert.True(t, free, "an appointment never conflicts with itself")
}

func TestFindConflictIgnoresInactive(t *testing.T) {
	provider := uuid.New()
	d := NewConflictDetector(stubFinder{appointments: []*Appointment{
		bookedAt(t, provider, 9, 0, 30, StatusCancelled),
		bookedAt(t, provider, 9, 0, 30, StatusNoShow),
		bookedAt(t, provider, 9, 0, 30, StatusCompleted),
	}})

	free, err := d.IsSlotFree(context.Background(), provider, mustSlot(t, june1, 9, 0, 30), uuid.Nil)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestFindConflictPropagatesFinderError(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewConflictDetector(stubFinder{err: boom})

	_, err := d.IsSlotFree(context.Background(), uuid.New(), mustSlot(t, june1, 9, 0, 30), uuid.Nil)
	assert.ErrorIs(t, err, boom)
}
