package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var appointmentFields = []string{
	"id", "appointment_number", "patient_id", "provider_id",
	"slot_date", "start_minute", "duration_minutes",
	"appointment_type", "status", "reason_for_visit", "notes",
	"cancelled_at", "cancellation_reason", "cancelled_by_patient",
	"checked_in_at", "check_in_notes", "started_at", "checked_out_at",
	"completed_at", "completion_notes", "no_show_at",
	"rescheduled_at", "reschedule_count",
	"version", "created_at", "updated_at",
}

var appointmentColumns = strings.Join(appointmentFields, ", ")

var pgDialect = goqu.Dialect("postgres")

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a           Appointment
		date        time.Time
		startMinute int
		duration    int
		typ         string
		status      string
	)

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.PatientID,
		&a.ProviderID,
		&date,
		&startMinute,
		&duration,
		&typ,
		&status,
		&a.ReasonForVisit,
		&a.Notes,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.CancelledByPatient,
		&a.CheckedInAt,
		&a.CheckInNotes,
		&a.StartedAt,
		&a.CheckedOutAt,
		&a.CompletedAt,
		&a.CompletionNotes,
		&a.NoShowAt,
		&a.RescheduledAt,
		&a.RescheduleCount,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	slot, err := NewTimeSlot(date, ClockTime(startMinute), duration)
	if err != nil {
		return nil, fmt.Errorf("appointment %s has a corrupt slot: %w", a.ID, err)
	}
	a.Slot = slot
	a.Type = AppointmentType(typ)
	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()

	var result []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func mapWriteErr(err error, a *Appointment) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return &TimeSlotConflictError{ProviderID: a.ProviderID, Slot: a.Slot}
		case pgUniqueViolation:
			return fmt.Errorf("duplicate appointment %s (%s): %w", a.ID, pgErr.ConstraintName, err)
		}
	}
	return err
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.Type, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_events (id, appointment_id, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ev.ID, ev.AppointmentID, string(ev.Type), payload, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert appointment event: %w", err)
		}
	}
	return nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a *Appointment) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (`+appointmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, 1, $24, $25)
		`,
			a.ID, a.Number, a.PatientID, a.ProviderID,
			a.Slot.Date(), int(a.Slot.Start()), a.Slot.DurationMinutes(),
			string(a.Type), string(a.Status), a.ReasonForVisit, a.Notes,
			a.CancelledAt, a.CancellationReason, a.CancelledByPatient,
			a.CheckedInAt, a.CheckInNotes, a.StartedAt, a.CheckedOutAt,
			a.CompletedAt, a.CompletionNotes, a.NoShowAt,
			a.RescheduledAt, a.RescheduleCount,
			a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return mapWriteErr(err, a)
		}
		return insertEvents(ctx, tx, a.PendingEvents())
	})
	if err != nil {
		return err
	}
	a.Version = 1
	return nil
}

func (r *PgRepository) Update(ctx context.Context, a *Appointment) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET slot_date = $3,
			    start_minute = $4,
			    duration_minutes = $5,
			    status = $6,
			    cancelled_at = $7,
			    cancellation_reason = $8,
			    cancelled_by_patient = $9,
			    checked_in_at = $10,
			    check_in_notes = $11,
			    started_at = $12,
			    checked_out_at = $13,
			    completed_at = $14,
			    completion_notes = $15,
			    no_show_at = $16,
			    rescheduled_at = $17,
			    reschedule_count = $18,
			    updated_at = $19,
			    version = version + 1
			WHERE id = $1
			  AND version = $2
		`,
			a.ID, a.Version,
			a.Slot.Date(), int(a.Slot.Start()), a.Slot.DurationMinutes(),
			string(a.Status),
			a.CancelledAt, a.CancellationReason, a.CancelledByPatient,
			a.CheckedInAt, a.CheckInNotes, a.StartedAt, a.CheckedOutAt,
			a.CompletedAt, a.CompletionNotes, a.NoShowAt,
			a.RescheduledAt, a.RescheduleCount, a.UpdatedAt,
		)
		if err != nil {
			return mapWriteErr(err, a)
		}
		if tag.RowsAffected() == 0 {
			return ErrConcurrentUpdate
		}
		return insertEvents(ctx, tx, a.PendingEvents())
	})
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFound(id.String())
	}
	return a, err
}

func (r *PgRepository) GetByNumber(ctx context.Context, number string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_number = $1
	`, number)
	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, notFound(number)
	}
	return a, err
}

func (r *PgRepository) ListActiveByProviderAndDate(ctx context.Context, providerID uuid.UUID, date time.Time) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND slot_date = $2
		  AND status = ANY($3)
		ORDER BY start_minute, appointment_number
	`, providerID, DateOf(date), statusStrings(ActiveStatuses))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Search(ctx context.Context, c Criteria) ([]*Appointment, error) {
	cols := make([]any, len(appointmentFields))
	for i, f := range appointmentFields {
		cols[i] = f
	}

	ds := pgDialect.From("appointments").Select(cols...).Prepared(true)
	if c.PatientID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"patient_id": c.PatientID.String()})
	}
	if c.ProviderID != uuid.Nil {
		ds = ds.Where(goqu.Ex{"provider_id": c.ProviderID.String()})
	}
	if !c.From.IsZero() {
		ds = ds.Where(goqu.C("slot_date").Gte(DateOf(c.From)))
	}
	if !c.To.IsZero() {
		ds = ds.Where(goqu.C("slot_date").Lte(DateOf(c.To)))
	}
	if c.Type != "" {
		ds = ds.Where(goqu.Ex{"appointment_type": string(c.Type)})
	}
	if len(c.Statuses) > 0 {
		ds = ds.Where(goqu.C("status").In(statusStrings(c.Statuses)))
	}

	ds = ds.Order(goqu.I("slot_date").Asc(), goqu.I("start_minute").Asc(), goqu.I("appointment_number").Asc())

	if c.Limit > 0 {
		ds = ds.Limit(uint(c.Limit))
	}
	if c.Offset > 0 {
		ds = ds.Offset(uint(c.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Lookups

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.db.QueryRow(ctx, `
		SELECT id, name, medical_record_number
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.MedicalRecordNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	var specialty *string
	err := r.db.QueryRow(ctx, `
		SELECT id, name, specialty
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &specialty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	if specialty != nil {
		p.Specialty = *specialty
	}
	return &p, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
