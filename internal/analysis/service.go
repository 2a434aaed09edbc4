// Package analysis turns prescription images and medication details into
// explained, stored-ready domain records using the model.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/pillguide/internal/ai"
	"github.com/dvloznov/pillguide/internal/domain"
	"github.com/dvloznov/pillguide/internal/extract"
	"github.com/dvloznov/pillguide/internal/logger"
)

// ErrInvalidImage is returned when the uploaded image cannot be decoded.
var ErrInvalidImage = errors.New("invalid prescription image")

// ImageStore keeps the full prescription image.
type ImageStore interface {
	UploadImage(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// OutputRecorder keeps every raw model answer for auditing.
type OutputRecorder interface {
	RecordModelOutput(ctx context.Context, out *domain.ModelOutput) error
}

// Service runs the model-backed analyses. Images and Outputs are optional.
type Service struct {
	client  ai.Client
	images  ImageStore
	outputs OutputRecorder
	log     zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewService creates a Service. images and outputs may be nil.
func NewService(client ai.Client, images ImageStore, outputs OutputRecorder, log zerolog.Logger) *Service {
	return &Service{
		client:  client,
		images:  images,
		outputs: outputs,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// NewPrescriptionID returns an ID for a prescription that will be analysed
// later, so it can be reported before the analysis runs.
func (s *Service) NewPrescriptionID() string {
	return s.newID()
}

// AnalyzePrescription reads the uploaded image, extracts its medications and
// explains each one in the preferred language. prescriptionID may be empty,
// in which case a new one is generated. The result is not persisted.
func (s *Service) AnalyzePrescription(ctx context.Context, prescriptionID string, upload domain.PrescriptionCreate) (*domain.Prescription, error) {
	if err := upload.Validate(); err != nil {
		return nil, err
	}
	if prescriptionID == "" {
		prescriptionID = s.newID()
	}

	state := &analysisState{
		PrescriptionID: prescriptionID,
		Upload:         upload,
	}
	if err := s.prescriptionPipeline().Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("AnalyzePrescription: %w", err)
	}

	s.logFor(ctx).Info().
		Str("prescription_id", prescriptionID).
		Str("detected_language", state.Extraction.DetectedLanguage).
		Int("medications", len(state.Prescription.Medications)).
		Msg("Prescription analysed")

	return state.Prescription, nil
}

// ExplainMedication builds a medication entered by hand, with its
// explanation in the preferred language.
func (s *Service) ExplainMedication(ctx context.Context, req domain.MedicationCreate) (*domain.Medication, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	exp, err := s.explain(ctx, id, req.Name, req.Dosage, req.Frequency, req.PreferredLanguage)
	if err != nil {
		return nil, fmt.Errorf("ExplainMedication: %w", err)
	}

	lang := req.PreferredLanguage
	return &domain.Medication{
		ID:                       id,
		Name:                     req.Name,
		Dosage:                   req.Dosage,
		Frequency:                req.Frequency,
		Timing:                   req.Timing,
		Duration:                 req.Duration,
		PlainLanguageExplanation: exp.FullExplanation(),
		WhyTimingMatters:         exp.WhyTimingMatters,
		WithFood:                 req.WithFood,
		Warnings:                 []string{exp.DosageSafetyReminder},
		TranslatedTo:             &lang,
		CreatedAt:                s.now(),
	}, nil
}

// CheckContraindications asks the model whether a medication interacts with
// the ones the patient already takes. An answer with no usable JSON yields
// the neutral DefaultRecommendations, never an all-clear.
func (s *Service) CheckContraindications(ctx context.Context, req domain.ContraindicationCheck) (*domain.ContraindicationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.client.Generate(ctx, ai.ContraindicationCheck(req.MedicationName, req.CurrentMedications, req.PreferredLanguage))
	if err != nil {
		return nil, fmt.Errorf("CheckContraindications: %w", err)
	}

	parsed, ok := extract.Parse(resp.Text)
	s.record(ctx, "", ai.CallContraindicationCheck, resp, parsed, ok)

	result := contraindicationResultFrom(parsed)
	return &result, nil
}

// explain generates the explanation for one medication. Model failures fall
// back to generic advice; only cancellation is returned as an error.
func (s *Service) explain(ctx context.Context, subjectID, name, dosage, frequency, language string) (MedicationExplanation, error) {
	resp, err := s.client.Generate(ctx, ai.MedicationExplanation(name, dosage, frequency, language))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return MedicationExplanation{}, ctxErr
		}
		s.logFor(ctx).Error().
			Err(err).
			Str("subject_id", subjectID).
			Str("medication", name).
			Msg("Explanation generation failed, using fallback")
		return fallbackExplanation(), nil
	}

	parsed, ok := extract.Parse(resp.Text)
	s.record(ctx, subjectID, ai.CallMedicationExplanation, resp, parsed, ok)

	return medicationExplanationFrom(parsed), nil
}

// record stores a model answer when a recorder is configured. Failures are
// logged and otherwise ignored.
func (s *Service) record(ctx context.Context, subjectID string, kind ai.CallKind, resp *ai.Response, parsed extract.Record, hit bool) {
	log := s.logFor(ctx)
	if !hit {
		log.Warn().
			Str("subject_id", subjectID).
			Str("call_kind", string(kind)).
			Msg("No JSON object in model response, using defaults")
	}
	if s.outputs == nil {
		return
	}

	out := &domain.ModelOutput{
		OutputID:      s.newID(),
		SubjectID:     subjectID,
		CallKind:      string(kind),
		ModelName:     resp.ModelName,
		RawText:       resp.Text,
		ExtractionHit: hit,
		TokensInput:   resp.TokensInput,
		TokensOutput:  resp.TokensOutput,
		CreatedAt:     s.now(),
	}
	if hit {
		if b, err := json.Marshal(parsed); err == nil {
			out.ParsedJSON = string(b)
		}
	}

	if err := s.outputs.RecordModelOutput(ctx, out); err != nil {
		log.Error().
			Err(err).
			Str("subject_id", subjectID).
			Str("call_kind", string(kind)).
			Msg("Failed to record model output")
	}
}

// logFor returns the request or job logger carried by ctx, or the service
// logger.
func (s *Service) logFor(ctx context.Context) zerolog.Logger {
	return logger.FromContextOr(ctx, s.log)
}
