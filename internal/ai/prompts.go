package ai

import (
	"fmt"
	"strings"

	"github.com/dvloznov/pillguide/internal/domain"
)

// PrescriptionOCR builds the request that reads a prescription image in any
// language and lists its medications.
func PrescriptionOCR(image []byte, mimeType string) Request {
	system := "You are a multilingual medical prescription analysis expert. " +
		"You can read prescriptions in any language and extract medication information accurately. " +
		"Always return valid JSON without markdown."

	var b strings.Builder
	b.WriteString("Analyze this prescription image. It may be in ANY language (")
	b.WriteString(strings.Join(languageNames(), ", "))
	b.WriteString(", etc.).\n\n")
	b.WriteString("IMPORTANT: Read the prescription in its original language first, then provide the information.\n\n")
	b.WriteString("Return ONLY valid JSON (no markdown):\n")
	b.WriteString(`{
    "detected_language": "language code (` + strings.Join(domain.LanguageCodes(), "/") + `)",
    "detected_language_name": "language name",
    "extracted_text": "full original text from prescription in original language",
    "medications": [
        {
            "name": "medication name in original language",
            "name_english": "medication name in English",
            "dosage": "dosage in original format",
            "frequency": "frequency in original language",
            "timing": ["timing indicators"],
            "duration": "duration if specified",
            "with_food": true/false
        }
    ]
}`)
	b.WriteString("\n\nIf unclear, return: ")
	b.WriteString(`{"detected_language": "unknown", "detected_language_name": "Unknown", "extracted_text": "Unable to read", "medications": []}`)

	return Request{
		Kind:              CallPrescriptionOCR,
		SystemInstruction: system,
		Prompt:            b.String(),
		Image:             image,
		ImageMIMEType:     mimeType,
	}
}

// MedicationExplanation builds the request for a plain-language explanation
// of one medication, written in the given language. The explanation says
// why timing matters so patients keep to the schedule.
func MedicationExplanation(name, dosage, frequency, language string) Request {
	lang := domain.LanguageName(language)

	system := fmt.Sprintf("You are a multilingual healthcare communication expert. "+
		"Explain medical information in %s using simple, plain language. Always return valid JSON.", lang)

	prompt := fmt.Sprintf(`For the medication '%s' (dosage: '%s', frequency: %s):

Provide explanation in %s language:
1. Explain what this medication does in simple, plain language (2-3 sentences)
2. Explain why timing matters (explain the 'why' to increase adherence)
3. Add a safety reminder about dosage accuracy

Return ONLY valid JSON:
{
    "plain_explanation": "simple explanation",
    "why_timing_matters": "why timing is important",
    "dosage_safety_reminder": "brief dosage safety reminder"
}`, name, dosage, frequency, lang)

	return Request{
		Kind:              CallMedicationExplanation,
		SystemInstruction: system,
		Prompt:            prompt,
	}
}

// ContraindicationCheck builds the request asking whether medication
// interacts with any of current.
func ContraindicationCheck(medication string, current []string, language string) Request {
	lang := domain.LanguageName(language)

	system := fmt.Sprintf("You are a multilingual medical safety expert. "+
		"Provide contraindication information in %s. Always return valid JSON.", lang)

	prompt := fmt.Sprintf(`Check if '%s' has any basic contraindications or interactions with these current medications: %s.

Provide response in %s language.

Return ONLY valid JSON:
{
    "has_contraindications": true/false,
    "warnings": ["list of warnings or empty array"],
    "recommendations": "brief recommendation or 'No known contraindications'"
}`, medication, strings.Join(current, ", "), lang)

	return Request{
		Kind:              CallContraindicationCheck,
		SystemInstruction: system,
		Prompt:            prompt,
	}
}

func languageNames() []string {
	codes := domain.LanguageCodes()
	names := make([]string, 0, len(codes))
	for _, code := range codes {
		names = append(names, domain.LanguageName(code))
	}
	return names
}
