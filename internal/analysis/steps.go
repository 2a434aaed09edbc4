package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/pillguide/internal/ai"
	"github.com/dvloznov/pillguide/internal/domain"
	"github.com/dvloznov/pillguide/internal/extract"
)

// step is a single stage of the prescription analysis.
type step interface {
	Name() string
	Execute(ctx context.Context, state *analysisState) error
}

// analysisState is shared by the steps of one analysis.
type analysisState struct {
	PrescriptionID string
	Upload         domain.PrescriptionCreate

	Image    []byte
	MIMEType string
	ImageURI string

	Extraction   PrescriptionExtraction
	Medications  []domain.Medication
	Prescription *domain.Prescription
}

// pipeline runs steps in order, stopping at the first error.
type pipeline struct {
	steps []step
}

func newPipeline(steps ...step) *pipeline {
	return &pipeline{steps: steps}
}

func (p *pipeline) Execute(ctx context.Context, state *analysisState) error {
	for _, st := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.Execute(ctx, state); err != nil {
			return fmt.Errorf("%s: %w", st.Name(), err)
		}
	}
	return nil
}

func (s *Service) prescriptionPipeline() *pipeline {
	return newPipeline(
		&decodeImageStep{},
		&storeImageStep{svc: s},
		&extractMedicationsStep{svc: s},
		&explainMedicationsStep{svc: s},
		&assemblePrescriptionStep{svc: s},
	)
}

// decodeImageStep decodes the base64 upload and sniffs its type.
type decodeImageStep struct{}

func (st *decodeImageStep) Name() string { return "decode image" }

func (st *decodeImageStep) Execute(ctx context.Context, state *analysisState) error {
	data, err := DecodeImage(state.Upload.ImageBase64)
	if err != nil {
		return err
	}
	state.Image = data
	state.MIMEType = DetectMIMEType(data)
	return nil
}

// storeImageStep uploads the full image when an image store is configured.
// A failed upload does not fail the analysis.
type storeImageStep struct {
	svc *Service
}

func (st *storeImageStep) Name() string { return "store image" }

func (st *storeImageStep) Execute(ctx context.Context, state *analysisState) error {
	if st.svc.images == nil {
		return nil
	}

	name := ImageObjectName(st.svc.now(), state.PrescriptionID, state.MIMEType)
	uri, err := st.svc.images.UploadImage(ctx, name, state.MIMEType, state.Image)
	if err != nil {
		st.svc.logFor(ctx).Error().
			Err(err).
			Str("prescription_id", state.PrescriptionID).
			Msg("Failed to store prescription image")
		return nil
	}
	state.ImageURI = uri
	return nil
}

// extractMedicationsStep runs OCR on the image.
type extractMedicationsStep struct {
	svc *Service
}

func (st *extractMedicationsStep) Name() string { return "extract medications" }

func (st *extractMedicationsStep) Execute(ctx context.Context, state *analysisState) error {
	resp, err := st.svc.client.Generate(ctx, ai.PrescriptionOCR(state.Image, state.MIMEType))
	if err != nil {
		return err
	}

	parsed, ok := extract.Parse(resp.Text)
	st.svc.record(ctx, state.PrescriptionID, ai.CallPrescriptionOCR, resp, parsed, ok)

	state.Extraction = prescriptionExtractionFrom(parsed)
	return nil
}

// explainMedicationsStep explains every extracted medication in the
// preferred language.
type explainMedicationsStep struct {
	svc *Service
}

func (st *explainMedicationsStep) Name() string { return "explain medications" }

func (st *explainMedicationsStep) Execute(ctx context.Context, state *analysisState) error {
	detected := state.Extraction.DetectedLanguage
	preferred := state.Upload.PreferredLanguage

	state.Medications = make([]domain.Medication, 0, len(state.Extraction.Medications))
	for _, med := range state.Extraction.Medications {
		name := med.DisplayName()
		exp, err := st.svc.explain(ctx, state.PrescriptionID, name, med.Dosage, med.Frequency, preferred)
		if err != nil {
			return err
		}

		original, translated := detected, preferred
		state.Medications = append(state.Medications, domain.Medication{
			ID:                       st.svc.newID(),
			Name:                     name,
			Dosage:                   med.Dosage,
			Frequency:                med.Frequency,
			Timing:                   med.Timing,
			Duration:                 med.Duration,
			PlainLanguageExplanation: exp.FullExplanation(),
			WhyTimingMatters:         exp.WhyTimingMatters,
			WithFood:                 med.WithFood,
			Warnings:                 []string{exp.DosageSafetyReminder},
			OriginalLanguage:         &original,
			TranslatedTo:             &translated,
			CreatedAt:                st.svc.now(),
		})
	}
	return nil
}

// assemblePrescriptionStep builds the prescription record.
type assemblePrescriptionStep struct {
	svc *Service
}

func (st *assemblePrescriptionStep) Name() string { return "assemble prescription" }

func (st *assemblePrescriptionStep) Execute(ctx context.Context, state *analysisState) error {
	state.Prescription = &domain.Prescription{
		ID:                state.PrescriptionID,
		PatientID:         state.Upload.PatientID,
		ImageData:         state.Upload.ImagePreview(),
		ImageURI:          state.ImageURI,
		ExtractedText:     state.Extraction.ExtractedText,
		DetectedLanguage:  state.Extraction.DetectedLanguage,
		PreferredLanguage: state.Upload.PreferredLanguage,
		Medications:       state.Medications,
		AnalysisComplete:  true,
		CreatedAt:         st.svc.now(),
	}
	return nil
}

// DecodeImage decodes a base64 image, accepting a data URL prefix and
// unpadded input.
func DecodeImage(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i != -1 {
			s = s[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return data, nil
}

// DetectMIMEType sniffs the image type. Anything the model would not accept
// as an image is sent as PNG.
func DetectMIMEType(data []byte) string {
	mime := http.DetectContentType(data)
	if i := strings.Index(mime, ";"); i != -1 {
		mime = mime[:i]
	}
	if strings.HasPrefix(mime, "image/") || mime == "application/pdf" {
		return mime
	}
	return "image/png"
}

var imageExtensions = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"image/bmp":       "bmp",
	"application/pdf": "pdf",
}

// ImageObjectName returns prescriptions/YYYY/MM/DD/<id>.<ext>.
func ImageObjectName(t time.Time, id, mimeType string) string {
	ext, ok := imageExtensions[mimeType]
	if !ok {
		ext = "bin"
	}
	return path.Join("prescriptions", t.Format("2006/01/02"), id+"."+ext)
}
