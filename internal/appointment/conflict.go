package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActiveBookingFinder returns a provider's active appointments on one day.
type ActiveBookingFinder interface {
	ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]*Appointment, error)
}

// ConflictDetector checks a candidate slot against a provider's active
// bookings on the same day. A provider-day holds tens of bookings at most, so
// a linear scan is enough.
type ConflictDetector struct {
	finder ActiveBookingFinder
}

func NewConflictDetector(finder ActiveBookingFinder) *ConflictDetector {
	return &ConflictDetector{finder: finder}
}

// FindConflict returns the first active appointment of providerID whose slot
// overlaps candidate, ignoring exclude. It returns nil when the slot is free.
func (d *ConflictDetector) FindConflict(ctx context.Context, providerID uuid.UUID, candidate TimeSlot, exclude uuid.UUID) (*Appointment, error) {
	existing, err := d.finder.ListActiveByProviderAndDate(ctx, providerID, candidate.Date())
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return firstOverlap(existing, candidate, exclude), nil
}

func (d *ConflictDetector) IsSlotFree(ctx context.Context, providerID uuid.UUID, candidate TimeSlot, exclude uuid.UUID) (bool, error) {
	c, err := d.FindConflict(ctx, providerID, candidate, exclude)
	if err != nil {
		return false, err
	}
	return c == nil, nil
}

func firstOverlap(existing []*Appointment, candidate TimeSlot, exclude uuid.UUID) *Appointment {
	for _, a := range existing {
		if exclude != uuid.Nil && a.ID == exclude {
			continue
		}
		if !a.Status.IsActive() {
			continue
		}
		if a.Slot.Overlaps(candidate) {
			return a
		}
	}
	return nil
}
