package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The readers below implement the per-key typed merge: the parsed value is
// used only when present and of the expected type (after the explicit
// coercions documented on each reader); otherwise def is returned. JSON null
// counts as absent.

// String reads a string field. Strings are trimmed and an empty result falls
// back to def. Numbers keep their JSON spelling, so a dosage written as 500
// reads as "500".
func String(rec Record, key, def string) string {
	switch v := rec[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return def
}

// OptionalString reads a string field that may legitimately be missing.
// It returns nil where String would return its default.
func OptionalString(rec Record, key string) *string {
	s := String(rec, key, "")
	if s == "" {
		return nil
	}
	return &s
}

// Bool reads a boolean field. Besides JSON booleans it accepts the strings
// "true", "yes", "false" and "no" in any case.
func Bool(rec Record, key string, def bool) bool {
	switch v := rec[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

// Strings reads a list-of-strings field. Non-string and blank elements of a
// JSON array are dropped; a single non-blank string becomes a one-element
// list. The result is never nil when the parsed value was an array.
func Strings(rec Record, key string, def []string) []string {
	switch v := rec[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return def
}

// Records reads a list-of-objects field, skipping elements that are not
// objects.
func Records(rec Record, key string) []Record {
	items, ok := rec[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
