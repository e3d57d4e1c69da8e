package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Patient and Provider are owned by other services; the scheduler only reads
// them to enrich summaries.
type Patient struct {
	ID                  uuid.UUID
	Name                string
	MedicalRecordNumber string
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty string
}

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type ProviderLookup interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
}

// Summary is an appointment joined with display fields of its participants.
// Patient or Provider is nil when the lookup failed or is not configured.
type Summary struct {
	*Appointment
	Patient  *Patient
	Provider *Provider
}
