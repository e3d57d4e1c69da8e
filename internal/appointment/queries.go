package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.load(ctx, id)
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: appointment number is required", ErrInvalidRequest)
	}
	a, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, storageErr("load appointment by number", err)
	}
	return a, nil
}

// GetSummary loads an appointment and decorates it with patient and provider
// display data. Lookup failures are logged and leave the field nil.
func (s *Service) GetSummary(ctx context.Context, id uuid.UUID) (*Summary, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Appointment: a}
	if s.patients != nil {
		p, err := s.patients.GetPatient(ctx, a.PatientID)
		if err != nil {
			s.log.Warn().Err(err).Str("patient_id", a.PatientID.String()).Msg("patient lookup failed")
		} else {
			sum.Patient = p
		}
	}
	if s.providers != nil {
		p, err := s.providers.GetProvider(ctx, a.ProviderID)
		if err != nil {
			s.log.Warn().Err(err).Str("provider_id", a.ProviderID.String()).Msg("provider lookup failed")
		} else {
			sum.Provider = p
		}
	}
	return sum, nil
}

// Search runs an arbitrary filter. Page size defaults to 20 and is capped at 100.
func (s *Service) Search(ctx context.Context, c Criteria) ([]*Appointment, error) {
	if !c.From.IsZero() && !c.To.IsZero() && DateOf(c.To).Before(DateOf(c.From)) {
		return nil, fmt.Errorf("%w: date range end is before its start", ErrInvalidRequest)
	}
	if c.Limit <= 0 {
		c.Limit = defaultPageSize
	}
	if c.Limit > maxPageSize {
		c.Limit = maxPageSize
	}
	if c.Offset < 0 {
		c.Offset = 0
	}
	result, err := s.repo.Search(ctx, c)
	if err != nil {
		return nil, storageErr("search appointments", err)
	}
	return result, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	return s.Search(ctx, Criteria{PatientID: patientID, Limit: limit, Offset: offset})
}

func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, error) {
	if providerID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	return s.Search(ctx, Criteria{ProviderID: providerID, Limit: limit, Offset: offset})
}

func (s *Service) ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]*Appointment, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: both ends of the date range are required", ErrInvalidRequest)
	}
	return s.Search(ctx, Criteria{From: from, To: to, Limit: limit, Offset: offset})
}

// TodaysAppointments lists every appointment of the provider on the current
// clinic day, whatever its status.
func (s *Service) TodaysAppointments(ctx context.Context, providerID uuid.UUID) ([]*Appointment, error) {
	if providerID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	today := DateOf(s.clock())
	return s.Search(ctx, Criteria{ProviderID: providerID, From: today, To: today, Limit: maxPageSize})
}

// Upcoming returns the earliest scheduled or confirmed appointments dated
// today or later.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]*Appointment, error) {
	return s.Search(ctx, Criteria{
		From:     DateOf(s.clock()),
		Statuses: []Status{StatusScheduled, StatusConfirmed},
		Limit:    limit,
	})
}
