package domain

import (
	"fmt"
	"strings"
	"time"
)

// ImagePreviewLength is how much of the base64 image is kept on the
// prescription record for reference.
const ImagePreviewLength = 100

// Prescription is an analysed prescription with its medications.
type Prescription struct {
	ID        string  `json:"id" bson:"id"`
	PatientID *string `json:"patient_id" bson:"patient_id"`

	ImageData string `json:"image_data" bson:"image_data"` // truncated base64, see ImagePreviewLength
	ImageURI  string `json:"image_uri,omitempty" bson:"image_uri,omitempty"`

	ExtractedText     string `json:"extracted_text" bson:"extracted_text"`
	DetectedLanguage  string `json:"detected_language" bson:"detected_language"`
	PreferredLanguage string `json:"preferred_language" bson:"preferred_language"`

	Medications      []Medication `json:"medications" bson:"medications"`
	AnalysisComplete bool         `json:"analysis_complete" bson:"analysis_complete"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// PrescriptionCreate is the request body for a prescription upload.
type PrescriptionCreate struct {
	ImageBase64       string  `json:"image_base64"`
	PatientID         *string `json:"patient_id"`
	PreferredLanguage string  `json:"preferred_language"`

	// Async queues the analysis and returns a job instead of the result.
	Async bool `json:"async"`
}

// Validate checks required fields and fills the preferred language default.
func (p *PrescriptionCreate) Validate() error {
	if strings.TrimSpace(p.ImageBase64) == "" {
		return fmt.Errorf("%w: image_base64 is required", ErrInvalidRequest)
	}
	p.PreferredLanguage = NormalizeLanguage(p.PreferredLanguage)
	return nil
}

// ImagePreview returns the prefix of the base64 image stored on the record.
func (p *PrescriptionCreate) ImagePreview() string {
	if len(p.ImageBase64) <= ImagePreviewLength {
		return p.ImageBase64
	}
	return p.ImageBase64[:ImagePreviewLength]
}
