package analysis

import (
	"github.com/dvloznov/pillguide/internal/domain"
	"github.com/dvloznov/pillguide/internal/extract"
)

// Fallback text used when the model omits a field.
const (
	DefaultDetectedLanguage     = "unknown"
	DefaultDetectedLanguageName = "Unknown"
	DefaultExtractedText        = "No text extracted"
	DefaultAsPrescribed         = "As prescribed"

	DefaultPlainExplanation     = "This medication is prescribed for your health. Please consult your doctor for specific information."
	DefaultWhyTimingMatters     = "Taking medication at the right time helps maintain consistent levels in your body for optimal effectiveness."
	DefaultDosageSafetyReminder = "Always follow the prescribed dosage exactly."

	DefaultRecommendations = "Could not assess interactions; please consult your pharmacist or doctor."
)

// Used instead of the model's answer when the explanation call fails.
const (
	fallbackPlainExplanation = "This medication is prescribed for your health. Please consult your healthcare provider."
	fallbackWhyTimingMatters = "Timing helps maintain steady medication levels for best results."
)

// ExtractedMedication is one medication as read from the prescription.
type ExtractedMedication struct {
	Name        string   `json:"name"`
	NameEnglish string   `json:"name_english,omitempty"`
	Dosage      string   `json:"dosage"`
	Frequency   string   `json:"frequency"`
	Timing      []string `json:"timing"`
	Duration    *string  `json:"duration"`
	WithFood    bool     `json:"with_food"`
}

// DisplayName prefers the English name.
func (m ExtractedMedication) DisplayName() string {
	if m.NameEnglish != "" {
		return m.NameEnglish
	}
	return m.Name
}

// PrescriptionExtraction is the normalized OCR answer.
type PrescriptionExtraction struct {
	DetectedLanguage     string                `json:"detected_language"`
	DetectedLanguageName string                `json:"detected_language_name"`
	ExtractedText        string                `json:"extracted_text"`
	Medications          []ExtractedMedication `json:"medications"`
}

// Defaults returns the record merged under the model's OCR answer.
func (PrescriptionExtraction) Defaults() extract.Record {
	return extract.Record{
		"detected_language":      DefaultDetectedLanguage,
		"detected_language_name": DefaultDetectedLanguageName,
		"extracted_text":         DefaultExtractedText,
		"medications":            []any{},
	}
}

// DecodePrescriptionExtraction normalizes an OCR answer. Medications without
// a name are dropped. The bool reports whether a JSON object was found.
func DecodePrescriptionExtraction(raw string) (PrescriptionExtraction, bool) {
	parsed, ok := extract.Parse(raw)
	return prescriptionExtractionFrom(parsed), ok
}

func prescriptionExtractionFrom(parsed extract.Record) PrescriptionExtraction {
	var p PrescriptionExtraction
	rec := extract.Merge(p.Defaults(), parsed)

	p.DetectedLanguage = extract.String(rec, "detected_language", DefaultDetectedLanguage)
	p.DetectedLanguageName = extract.String(rec, "detected_language_name", DefaultDetectedLanguageName)
	p.ExtractedText = extract.String(rec, "extracted_text", DefaultExtractedText)
	p.Medications = []ExtractedMedication{}

	for _, item := range extract.Records(rec, "medications") {
		name := extract.String(item, "name", "")
		if name == "" {
			continue
		}
		p.Medications = append(p.Medications, ExtractedMedication{
			Name:        name,
			NameEnglish: extract.String(item, "name_english", ""),
			Dosage:      extract.String(item, "dosage", DefaultAsPrescribed),
			Frequency:   extract.String(item, "frequency", DefaultAsPrescribed),
			Timing:      extract.Strings(item, "timing", []string{}),
			Duration:    extract.OptionalString(item, "duration"),
			WithFood:    extract.Bool(item, "with_food", false),
		})
	}

	return p
}

// MedicationExplanation is the plain-language explanation of one medication.
type MedicationExplanation struct {
	PlainExplanation     string `json:"plain_explanation"`
	WhyTimingMatters     string `json:"why_timing_matters"`
	DosageSafetyReminder string `json:"dosage_safety_reminder"`
}

// Defaults returns the record merged under the model's explanation.
func (MedicationExplanation) Defaults() extract.Record {
	return extract.Record{
		"plain_explanation":      DefaultPlainExplanation,
		"why_timing_matters":     DefaultWhyTimingMatters,
		"dosage_safety_reminder": DefaultDosageSafetyReminder,
	}
}

// FullExplanation joins the explanation and the safety reminder.
func (e MedicationExplanation) FullExplanation() string {
	return e.PlainExplanation + " ⚠️ " + e.DosageSafetyReminder
}

// DecodeMedicationExplanation normalizes an explanation answer.
func DecodeMedicationExplanation(raw string) (MedicationExplanation, bool) {
	parsed, ok := extract.Parse(raw)
	return medicationExplanationFrom(parsed), ok
}

func medicationExplanationFrom(parsed extract.Record) MedicationExplanation {
	var e MedicationExplanation
	rec := extract.Merge(e.Defaults(), parsed)

	e.PlainExplanation = extract.String(rec, "plain_explanation", DefaultPlainExplanation)
	e.WhyTimingMatters = extract.String(rec, "why_timing_matters", DefaultWhyTimingMatters)
	e.DosageSafetyReminder = extract.String(rec, "dosage_safety_reminder", DefaultDosageSafetyReminder)

	return e
}

// fallbackExplanation is used when the model could not be reached.
func fallbackExplanation() MedicationExplanation {
	return MedicationExplanation{
		PlainExplanation:     fallbackPlainExplanation,
		WhyTimingMatters:     fallbackWhyTimingMatters,
		DosageSafetyReminder: DefaultDosageSafetyReminder,
	}
}

// ContraindicationDefaults returns the record merged under the model's
// interaction check answer.
func ContraindicationDefaults() extract.Record {
	return extract.Record{
		"has_contraindications": false,
		"warnings":              []any{},
		"recommendations":       DefaultRecommendations,
	}
}

// DecodeContraindicationResult normalizes an interaction check answer.
func DecodeContraindicationResult(raw string) (domain.ContraindicationResult, bool) {
	parsed, ok := extract.Parse(raw)
	return contraindicationResultFrom(parsed), ok
}

func contraindicationResultFrom(parsed extract.Record) domain.ContraindicationResult {
	rec := extract.Merge(ContraindicationDefaults(), parsed)
	return domain.ContraindicationResult{
		HasContraindications: extract.Bool(rec, "has_contraindications", false),
		Warnings:             extract.Strings(rec, "warnings", []string{}),
		Recommendations:      extract.String(rec, "recommendations", DefaultRecommendations),
	}
}
