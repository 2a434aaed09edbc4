package domain

import "strings"

// DefaultLanguage is used when no preferred language is given.
const DefaultLanguage = "en"

// SupportedLanguages maps language codes to display names.
var SupportedLanguages = map[string]string{
	"en": "English",
	"es": "Spanish",
	"hi": "Hindi",
	"ar": "Arabic",
	"zh": "Chinese",
	"fr": "French",
	"de": "German",
	"pt": "Portuguese",
	"ru": "Russian",
	"ja": "Japanese",
}

// languageOrder lists SupportedLanguages in display order.
var languageOrder = []string{"en", "es", "hi", "ar", "zh", "fr", "de", "pt", "ru", "ja"}

// LanguageCodes returns the supported language codes in display order.
func LanguageCodes() []string {
	return append([]string(nil), languageOrder...)
}

// NormalizeLanguage lower-cases and trims a language code, defaulting to
// English when empty. Unsupported codes are kept as given.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return DefaultLanguage
	}
	return code
}

// LanguageName returns the display name for code, or English for codes
// outside SupportedLanguages.
func LanguageName(code string) string {
	if name, ok := SupportedLanguages[NormalizeLanguage(code)]; ok {
		return name
	}
	return SupportedLanguages[DefaultLanguage]
}
