// Package store persists prescriptions and medications.
package store

import (
	"context"
	"errors"

	"github.com/dvloznov/pillguide/internal/domain"
)

// ErrNotFound is returned when no document has the requested ID.
var ErrNotFound = errors.New("not found")

// ListLimit caps the number of documents returned by list operations.
const ListLimit = 1000

// PrescriptionRepository stores analysed prescriptions.
type PrescriptionRepository interface {
	InsertPrescription(ctx context.Context, p *domain.Prescription) error
	// ListPrescriptions returns the newest prescriptions first, filtered by
	// patient when patientID is non-empty.
	ListPrescriptions(ctx context.Context, patientID string) ([]domain.Prescription, error)
	GetPrescription(ctx context.Context, id string) (*domain.Prescription, error)
}

// MedicationRepository stores medications added by hand.
type MedicationRepository interface {
	InsertMedication(ctx context.Context, m *domain.Medication) error
	ListMedications(ctx context.Context) ([]domain.Medication, error)
	DeleteMedication(ctx context.Context, id string) error
}
