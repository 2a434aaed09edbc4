package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestLanguageName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"es", "Spanish"},
		{"ES", "Spanish"},
		{" hi ", "Hindi"},
		{"", "English"},
		{"xx", "English"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := LanguageName(tt.code); got != tt.want {
				t.Errorf("LanguageName(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if got := NormalizeLanguage(""); got != "en" {
		t.Errorf("NormalizeLanguage(\"\") = %q, want en", got)
	}
	if got := NormalizeLanguage(" FR"); got != "fr" {
		t.Errorf("NormalizeLanguage(\" FR\") = %q, want fr", got)
	}
}

func TestMedicationCreate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     MedicationCreate
		wantErr bool
	}{
		{"valid", MedicationCreate{Name: "Ibuprofen", Dosage: "200mg", Frequency: "twice daily"}, false},
		{"missing name", MedicationCreate{Dosage: "200mg", Frequency: "daily"}, true},
		{"blank dosage", MedicationCreate{Name: "Ibuprofen", Dosage: " ", Frequency: "daily"}, true},
		{"missing frequency", MedicationCreate{Name: "Ibuprofen", Dosage: "200mg"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
			if err == nil {
				if tt.req.PreferredLanguage != "en" {
					t.Errorf("PreferredLanguage = %q, want en", tt.req.PreferredLanguage)
				}
				if tt.req.Timing == nil {
					t.Error("Timing should default to an empty list")
				}
			}
		})
	}
}

func TestContraindicationCheck_Validate(t *testing.T) {
	ok := ContraindicationCheck{MedicationName: "Warfarin", CurrentMedications: []string{}}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	missing := ContraindicationCheck{MedicationName: "Warfarin"}
	if err := missing.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
	}
}

func TestPrescriptionCreate(t *testing.T) {
	req := PrescriptionCreate{ImageBase64: strings.Repeat("a", 150), PreferredLanguage: "ES"}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if req.PreferredLanguage != "es" {
		t.Errorf("PreferredLanguage = %q, want es", req.PreferredLanguage)
	}
	if got := len(req.ImagePreview()); got != ImagePreviewLength {
		t.Errorf("len(ImagePreview()) = %d, want %d", got, ImagePreviewLength)
	}

	short := PrescriptionCreate{ImageBase64: "abc"}
	if got := short.ImagePreview(); got != "abc" {
		t.Errorf("ImagePreview() = %q, want abc", got)
	}

	empty := PrescriptionCreate{}
	if err := empty.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
	}
}

func TestLanguageCodes(t *testing.T) {
	codes := LanguageCodes()
	if len(codes) != len(SupportedLanguages) {
		t.Fatalf("LanguageCodes() has %d codes, SupportedLanguages has %d", len(codes), len(SupportedLanguages))
	}
	for _, code := range codes {
		if _, ok := SupportedLanguages[code]; !ok {
			t.Errorf("LanguageCodes() returned unsupported code %q", code)
		}
	}
	if codes[0] != DefaultLanguage {
		t.Errorf("LanguageCodes()[0] = %q, want %q", codes[0], DefaultLanguage)
	}

	codes[0] = "xx"
	if LanguageCodes()[0] != DefaultLanguage {
		t.Error("LanguageCodes() exposes its backing slice")
	}
}
