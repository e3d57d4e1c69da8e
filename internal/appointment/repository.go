package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Criteria filters appointment searches. Zero values mean "any".
// From and To are inclusive calendar dates.
type Criteria struct {
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	From       time.Time
	To         time.Time
	Type       AppointmentType
	Statuses   []Status
	Limit      int
	Offset     int
}

// Repository is the storage collaborator. Results are always ordered by
// date, start time, then appointment number.
type Repository interface {
	// Create stores a new appointment together with its pending events in one
	// commit and sets Version to 1.
	Create(ctx context.Context, a *Appointment) error
	// Update stores a loaded appointment and its pending events if the stored
	// version still equals a.Version, then increments a.Version. A stale
	// version yields ErrConcurrentUpdate.
	Update(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByNumber(ctx context.Context, number string) (*Appointment, error)

	// For conflict checks
	ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]*Appointment, error)

	Search(ctx context.Context, c Criteria) ([]*Appointment, error)
}

func (c Criteria) matches(a *Appointment) bool {
	if c.PatientID != uuid.Nil && a.PatientID != c.PatientID {
		return false
	}
	if c.ProviderID != uuid.Nil && a.ProviderID != c.ProviderID {
		return false
	}
	d := a.Slot.Date()
	if !c.From.IsZero() && d.Before(DateOf(c.From)) {
		return false
	}
	if !c.To.IsZero() && d.After(DateOf(c.To)) {
		return false
	}
	if c.Type != "" && a.Type != c.Type {
		return false
	}
	if len(c.Statuses) > 0 {
		for _, s := range c.Statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	}
	return true
}

// slotOrder reports whether a sorts before b in repository order.
func slotOrder(a, b *Appointment) bool {
	da, db := a.Slot.Date(), b.Slot.Date()
	if !da.Equal(db) {
		return da.Before(db)
	}
	if a.Slot.Start() != b.Slot.Start() {
		return a.Slot.Start() < b.Slot.Start()
	}
	return a.Number < b.Number
}
