package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/care-scheduling/internal/metrics"
)

var tracer = otel.Tracer("care-scheduling.internal.appointment")

// Publisher hands committed events to downstream consumers. It must not
// block the caller on delivery; failures are the publisher's to log and retry.
type Publisher interface {
	Publish(ctx context.Context, events ...Event)
}

// ScheduleRequest carries the input of Service.Schedule. A non-positive
// DurationMinutes falls back to the type's default.
type ScheduleRequest struct {
	PatientID       uuid.UUID
	ProviderID      uuid.UUID
	Date            time.Time
	StartTime       ClockTime
	DurationMinutes int
	Type            AppointmentType
	ReasonForVisit  string
	Notes           string
}

type Service struct {
	repo      Repository
	detector  *ConflictDetector
	locker    Locker
	numbers   NumberSource
	publisher Publisher
	patients  PatientLookup
	providers ProviderLookup
	metrics   *metrics.SchedulingMetrics
	log       zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(repo Repository, locker Locker, numbers NumberSource, publisher Publisher, logger zerolog.Logger) *Service {
	if repo == nil {
		panic("appointment: repository required")
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if numbers == nil {
		numbers = NewLocalSequence()
	}
	return &Service{
		repo:      repo,
		detector:  NewConflictDetector(repo),
		locker:    locker,
		numbers:   numbers,
		publisher: publisher,
		log:       logger.With().Str("component", "appointment").Logger(),
		loc:       time.UTC,
		now:       time.Now,
	}
}

func (s *Service) WithLookups(patients PatientLookup, providers ProviderLookup) *Service {
	s.patients = patients
	s.providers = providers
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the clinic time zone used to interpret slot wall-clock times.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

// Schedule books a new appointment. The conflict check and the insert run
// under the provider-day lock so two overlapping requests cannot both commit.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.schedule")
	started := time.Now()
	defer func() { s.finish(span, "schedule", started, err) }()
	span.SetAttributes(
		attribute.String("scheduling.provider_id", req.ProviderID.String()),
		attribute.String("scheduling.patient_id", req.PatientID.String()),
	)

	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}
	if req.ProviderID == uuid.Nil {
		return nil, fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	if req.Type.DefaultDuration() == 0 {
		return nil, fmt.Errorf("%w: unknown appointment type %q", ErrInvalidRequest, req.Type)
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = req.Type.DefaultDuration()
	}
	slot, err := NewTimeSlot(req.Date, req.StartTime, duration)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if slot.IsPast(now) {
		return nil, &InvalidSlotError{Reason: "slot start is in the past"}
	}

	var opErr error
	lockErr := s.locker.WithProviderDayLock(ctx, req.ProviderID, slot.Date(), func(ctx context.Context) error {
		opErr = func() error {
			if err := s.ensureFree(ctx, req.ProviderID, slot, uuid.Nil); err != nil {
				return err
			}
			number, err := s.numbers.Next(ctx, now)
			if err != nil {
				return &UnavailableError{Op: "next appointment number", Err: err}
			}
			a := New(number, req.PatientID, req.ProviderID, slot, req.Type, req.ReasonForVisit, req.Notes, now)
			if err := s.repo.Create(ctx, a); err != nil {
				return storageErr("create appointment", err)
			}
			appt = a
			return nil
		}()
		return opErr
	})
	if err := lockResult(opErr, lockErr); err != nil {
		return nil, err
	}

	s.publish(ctx, appt)
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("appointment_number", appt.Number).
		Str("provider_id", appt.ProviderID.String()).
		Str("slot", appt.Slot.String()).
		Msg("appointment scheduled")
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "confirm", id, func(a *Appointment, now time.Time) error {
		return a.Confirm(now)
	})
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	return s.transition(ctx, "check_in", id, func(a *Appointment, now time.Time) error {
		return a.CheckIn(notes, now)
	})
}

func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "start", id, func(a *Appointment, now time.Time) error {
		return a.Start(now)
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	return s.transition(ctx, "complete", id, func(a *Appointment, now time.Time) error {
		return a.Complete(notes, now)
	})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, byPatient bool) (*Appointment, error) {
	return s.transition(ctx, "cancel", id, func(a *Appointment, now time.Time) error {
		return a.Cancel(reason, byPatient, now)
	})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, "mark_no_show", id, func(a *Appointment, now time.Time) error {
		return a.MarkNoShow(now)
	})
}

// Reschedule moves an appointment to a new slot. The new slot is checked
// against the provider's other active bookings; the appointment's own current
// booking is ignored so it may shift within its existing window.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, start ClockTime, durationMinutes int) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	started := time.Now()
	defer func() { s.finish(span, "reschedule", started, err) }()
	span.SetAttributes(attribute.String("scheduling.appointment_id", id.String()))

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanApply(current.Status, OpReschedule) {
		return nil, &InvalidStateTransitionError{Status: current.Status, Operation: OpReschedule}
	}
	if durationMinutes <= 0 {
		durationMinutes = current.Slot.DurationMinutes()
	}
	slot, err := NewTimeSlot(date, start, durationMinutes)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	if slot.IsPast(now) {
		return nil, &InvalidSlotError{Reason: "slot start is in the past"}
	}

	var opErr error
	lockErr := s.locker.WithProviderDayLock(ctx, current.ProviderID, slot.Date(), func(ctx context.Context) error {
		opErr = func() error {
			// Reload inside the lock so the version we write against is fresh.
			a, err := s.load(ctx, id)
			if err != nil {
				return err
			}
			if err := s.ensureFree(ctx, a.ProviderID, slot, a.ID); err != nil {
				return err
			}
			if err := a.Reschedule(slot, now); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, a); err != nil {
				return storageErr("update appointment", err)
			}
			appt = a
			return nil
		}()
		return opErr
	})
	if err := lockResult(opErr, lockErr); err != nil {
		return nil, err
	}

	s.publish(ctx, appt)
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot", appt.Slot.String()).
		Msg("appointment rescheduled")
	return appt, nil
}

// IsSlotAvailable is a read-only pre-flight of the conflict check.
func (s *Service) IsSlotAvailable(ctx context.Context, providerID uuid.UUID, date time.Time, start ClockTime, durationMinutes int) (bool, error) {
	if providerID == uuid.Nil {
		return false, fmt.Errorf("%w: provider_id is required", ErrInvalidRequest)
	}
	slot, err := NewTimeSlot(date, start, durationMinutes)
	if err != nil {
		return false, err
	}
	free, err := s.detector.IsSlotFree(ctx, providerID, slot, uuid.Nil)
	if err != nil {
		return false, storageErr("check availability", err)
	}
	return free, nil
}

// SweepNoShows marks scheduled or confirmed appointments whose slot ended more
// than grace ago as no-shows. It returns how many were marked.
func (s *Service) SweepNoShows(ctx context.Context, grace time.Duration) (int, error) {
	now := s.clock()
	candidates, err := s.repo.Search(ctx, Criteria{
		To:       DateOf(now),
		Statuses: []Status{StatusScheduled, StatusConfirmed},
	})
	if err != nil {
		return 0, storageErr("find no-show candidates", err)
	}

	marked := 0
	for _, a := range candidates {
		if !a.Slot.EndAt(s.loc).Add(grace).Before(now) {
			continue
		}
		if _, err := s.MarkNoShow(ctx, a.ID); err != nil {
			if errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to mark no-show")
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *Service) transition(ctx context.Context, op string, id uuid.UUID, apply func(a *Appointment, now time.Time) error) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "appointment."+op)
	started := time.Now()
	defer func() { s.finish(span, op, started, err) }()
	span.SetAttributes(attribute.String("scheduling.appointment_id", id.String()))

	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(a, s.clock()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, storageErr("update appointment", err)
	}

	s.publish(ctx, a)
	s.log.Info().
		Str("appointment_id", a.ID.String()).
		Str("status", string(a.Status)).
		Msg("appointment " + op)
	return a, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("load appointment", err)
	}
	return a, nil
}

func (s *Service) ensureFree(ctx context.Context, providerID uuid.UUID, slot TimeSlot, exclude uuid.UUID) error {
	conflict, err := s.detector.FindConflict(ctx, providerID, slot, exclude)
	if err != nil {
		return storageErr("check conflicts", err)
	}
	if conflict != nil {
		return &TimeSlotConflictError{ProviderID: providerID, Slot: slot, ConflictingID: conflict.ID}
	}
	return nil
}

// publish drains the pending events of a committed aggregate. It runs
// detached from ctx so a caller hanging up after commit cannot drop events.
func (s *Service) publish(ctx context.Context, a *Appointment) {
	events := a.PendingEvents()
	a.ClearEvents()
	if s.publisher == nil || len(events) == 0 {
		return
	}
	s.publisher.Publish(context.WithoutCancel(ctx), events...)
}

func (s *Service) finish(span trace.Span, op string, started time.Time, err error) {
	defer span.End()
	s.metrics.ObserveCommand(op, resultLabel(err), time.Since(started).Seconds())
	if err == nil {
		return
	}
	if errors.Is(err, ErrTimeSlotConflict) {
		s.metrics.ObserveConflict(op)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, ErrUnavailable) {
		s.log.Error().Err(err).Str("operation", op).Msg("appointment command failed")
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeSlotConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrConcurrentUpdate):
		return "stale"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	default:
		return "error"
	}
}

// storageErr passes domain errors through and tags everything else as an
// infrastructure failure.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrTimeSlotConflict),
		errors.Is(err, ErrConcurrentUpdate),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// lockResult prefers the error from inside the critical section; an error
// from the locker alone means the lock could not be taken.
func lockResult(opErr, lockErr error) error {
	if opErr != nil {
		return opErr
	}
	if lockErr == nil {
		return nil
	}
	if errors.Is(lockErr, context.Canceled) || errors.Is(lockErr, context.DeadlineExceeded) {
		return lockErr
	}
	return &UnavailableError{Op: "acquire provider lock", Err: lockErr}
}
