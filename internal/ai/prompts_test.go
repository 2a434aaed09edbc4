package ai

import (
	"strings"
	"testing"
)

func TestPrescriptionOCR(t *testing.T) {
	req := PrescriptionOCR([]byte{1, 2}, "image/png")

	if req.Kind != CallPrescriptionOCR {
		t.Errorf("Kind = %q", req.Kind)
	}
	if len(req.Image) != 2 || req.ImageMIMEType != "image/png" {
		t.Errorf("image not attached: %d bytes, %q", len(req.Image), req.ImageMIMEType)
	}
	for _, want := range []string{`"medications"`, `"name_english"`, `"with_food"`, "en/es/hi/ar/zh/fr/de/pt/ru/ja", "Hindi"} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestMedicationExplanation(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"es", "Spanish"},
		{"en", "English"},
		{"tlh", "English"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			req := MedicationExplanation("Amoxicillin", "500mg", "twice daily", tt.language)

			if req.Kind != CallMedicationExplanation {
				t.Errorf("Kind = %q", req.Kind)
			}
			if !strings.Contains(req.SystemInstruction, tt.want) {
				t.Errorf("system instruction %q does not name %s", req.SystemInstruction, tt.want)
			}
			for _, want := range []string{"'Amoxicillin'", "'500mg'", "twice daily", "dosage_safety_reminder", "in " + tt.want + " language"} {
				if !strings.Contains(req.Prompt, want) {
					t.Errorf("prompt missing %q", want)
				}
			}
			if req.Image != nil {
				t.Error("explanation request carries an image")
			}
		})
	}
}

func TestContraindicationCheck(t *testing.T) {
	req := ContraindicationCheck("Warfarin", []string{"Aspirin", "Ibuprofen"}, "fr")

	if req.Kind != CallContraindicationCheck {
		t.Errorf("Kind = %q", req.Kind)
	}
	if !strings.Contains(req.Prompt, "'Warfarin'") || !strings.Contains(req.Prompt, "Aspirin, Ibuprofen") {
		t.Errorf("prompt does not list the medications: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, "French") {
		t.Error("prompt does not name the response language")
	}
}
