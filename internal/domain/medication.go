package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is returned by request validation.
var ErrInvalidRequest = errors.New("invalid request")

// Medication is one medication with its generated explanations. It is both
// the API representation and the stored document.
type Medication struct {
	ID        string   `json:"id" bson:"id"`
	Name      string   `json:"name" bson:"name"`
	Dosage    string   `json:"dosage" bson:"dosage"`
	Frequency string   `json:"frequency" bson:"frequency"`
	Timing    []string `json:"timing" bson:"timing"`
	Duration  *string  `json:"duration" bson:"duration"`

	PlainLanguageExplanation string `json:"plain_language_explanation" bson:"plain_language_explanation"`
	WhyTimingMatters         string `json:"why_timing_matters" bson:"why_timing_matters"`

	WithFood bool     `json:"with_food" bson:"with_food"`
	Warnings []string `json:"warnings" bson:"warnings"`

	OriginalLanguage *string `json:"original_language" bson:"original_language"` // language the prescription was written in
	TranslatedTo     *string `json:"translated_to" bson:"translated_to"`         // language of the explanations

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// MedicationCreate is the request body for adding a medication by hand.
type MedicationCreate struct {
	Name              string   `json:"name"`
	Dosage            string   `json:"dosage"`
	Frequency         string   `json:"frequency"`
	Timing            []string `json:"timing"`
	Duration          *string  `json:"duration"`
	WithFood          bool     `json:"with_food"`
	PreferredLanguage string   `json:"preferred_language"`
}

// Validate checks required fields and fills the preferred language default.
func (m *MedicationCreate) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(m.Dosage) == "" {
		return fmt.Errorf("%w: dosage is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(m.Frequency) == "" {
		return fmt.Errorf("%w: frequency is required", ErrInvalidRequest)
	}
	if m.Timing == nil {
		m.Timing = []string{}
	}
	m.PreferredLanguage = NormalizeLanguage(m.PreferredLanguage)
	return nil
}

// ContraindicationCheck is the request body for a drug interaction check.
type ContraindicationCheck struct {
	MedicationName     string   `json:"medication_name"`
	CurrentMedications []string `json:"current_medications"`
	PreferredLanguage  string   `json:"preferred_language"`
}

// Validate checks required fields and fills the preferred language default.
func (c *ContraindicationCheck) Validate() error {
	if strings.TrimSpace(c.MedicationName) == "" {
		return fmt.Errorf("%w: medication_name is required", ErrInvalidRequest)
	}
	if c.CurrentMedications == nil {
		return fmt.Errorf("%w: current_medications is required", ErrInvalidRequest)
	}
	c.PreferredLanguage = NormalizeLanguage(c.PreferredLanguage)
	return nil
}

// ContraindicationResult is the outcome of a drug interaction check.
type ContraindicationResult struct {
	HasContraindications bool     `json:"has_contraindications"`
	Warnings             []string `json:"warnings"`
	Recommendations      string   `json:"recommendations"`
}
