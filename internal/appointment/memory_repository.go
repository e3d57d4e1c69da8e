package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. Like the Postgres schema it
// refuses to store two overlapping active slots for one provider.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*Appointment
	byNumber map[string]uuid.UUID
	history  []Event
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[uuid.UUID]*Appointment),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, a *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[a.ID]; ok {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	if _, ok := r.byNumber[a.Number]; ok {
		return fmt.Errorf("appointment number %s already exists", a.Number)
	}
	if err := r.checkOverlapLocked(a); err != nil {
		return err
	}

	stored := a.Clone()
	stored.Version = 1
	stored.ClearEvents()
	r.byID[a.ID] = stored
	r.byNumber[a.Number] = a.ID
	r.history = append(r.history, a.PendingEvents()...)
	a.Version = 1
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[a.ID]
	if !ok {
		return notFound(a.ID.String())
	}
	if current.Version != a.Version {
		return ErrConcurrentUpdate
	}
	if err := r.checkOverlapLocked(a); err != nil {
		return err
	}

	stored := a.Clone()
	stored.Version = a.Version + 1
	stored.ClearEvents()
	r.byID[a.ID] = stored
	r.history = append(r.history, a.PendingEvents()...)
	a.Version++
	return nil
}

func (r *MemoryRepository) checkOverlapLocked(a *Appointment) error {
	if !a.Status.IsActive() {
		return nil
	}
	for _, other := range r.byID {
		if other.ID == a.ID || other.ProviderID != a.ProviderID || !other.Status.IsActive() {
			continue
		}
		if other.Slot.Overlaps(a.Slot) {
			return &TimeSlotConflictError{ProviderID: a.ProviderID, Slot: a.Slot, ConflictingID: other.ID}
		}
	}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, notFound(id.String())
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[number]
	if !ok {
		return nil, notFound(number)
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]*Appointment, error) {
	return r.Search(ctx, Criteria{
		ProviderID: providerID,
		From:       date,
		To:         date,
		Statuses:   ActiveStatuses,
	})
}

func (r *MemoryRepository) Search(ctx context.Context, c Criteria) ([]*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var result []*Appointment
	for _, a := range r.byID {
		if c.matches(a) {
			result = append(result, a.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return slotOrder(result[i], result[j]) })

	if c.Offset > 0 {
		if c.Offset >= len(result) {
			return nil, nil
		}
		result = result[c.Offset:]
	}
	if c.Limit > 0 && len(result) > c.Limit {
		result = result[:c.Limit]
	}
	return result, nil
}

// Events returns the committed event history for one appointment.
func (r *MemoryRepository) Events(id uuid.UUID) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, ev := range r.history {
		if ev.AppointmentID == id {
			out = append(out, ev)
		}
	}
	return out
}

// MemoryDirectory is an in-memory PatientLookup and ProviderLookup.
type MemoryDirectory struct {
	mu        sync.RWMutex
	patients  map[uuid.UUID]Patient
	providers map[uuid.UUID]Provider
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		patients:  make(map[uuid.UUID]Patient),
		providers: make(map[uuid.UUID]Provider),
	}
}

func (d *MemoryDirectory) AddPatient(p Patient) {
	d.mu.Lock()
	d.patients[p.ID] = p
	d.mu.Unlock()
}

func (d *MemoryDirectory) AddProvider(p Provider) {
	d.mu.Lock()
	d.providers[p.ID] = p
	d.mu.Unlock()
}

func (d *MemoryDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (d *MemoryDirectory) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}
