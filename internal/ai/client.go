// Package ai talks to the hosted multimodal model. It knows nothing about
// prescriptions beyond the prompt text in prompts.go; callers turn the raw
// text it returns into records with the extract package.
package ai

import (
	"context"
	"errors"
	"time"
)

// CallKind identifies which prompt a call was made with. It is recorded
// with every model output.
type CallKind string

const (
	CallPrescriptionOCR       CallKind = "prescription_ocr"
	CallMedicationExplanation CallKind = "medication_explanation"
	CallContraindicationCheck CallKind = "contraindication_check"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Client generates text from a prompt and an optional image.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single model call.
type Request struct {
	Kind              CallKind
	SystemInstruction string
	Prompt            string

	// Image is sent inline after the prompt when non-empty.
	Image         []byte
	ImageMIMEType string
}

// Response is the raw model answer plus usage metadata.
type Response struct {
	Text         string
	ModelName    string
	TokensInput  int64
	TokensOutput int64
}

// Config holds generation and transport settings.
type Config struct {
	APIKey string
	Model  string

	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32

	// Timeout bounds each attempt, not the whole call.
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// DefaultConfig returns the settings tuned for medical text: low
// temperature, bounded output.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-2.5-flash",
		Temperature:     0.3,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 2048,
		Timeout:         60 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      2 * time.Second,
	}
}
