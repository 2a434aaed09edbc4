// Package extract pulls a JSON object out of free-form model output and
// merges it over a caller-supplied defaults record.
//
// Nothing in this package returns an error: a response with no usable JSON
// object (absent, or present but malformed) simply yields the defaults.
// All functions are pure and safe for concurrent use.
package extract

import (
	"encoding/json"
	"io"
	"strings"
)

// Record is a decoded JSON object keyed by field name.
type Record map[string]any

const fence = "```"

// Extract returns defaults overridden by the top-level keys of the JSON
// object embedded in rawText. Keys missing from the parsed object keep their
// default value; keys unknown to defaults are passed through. When rawText
// holds no parseable object the result equals defaults.
//
// The returned record is always a new map; defaults is never modified.
func Extract(rawText string, defaults Record) Record {
	parsed, _ := Parse(rawText)
	return Merge(defaults, parsed)
}

// Merge returns a new record holding defaults overridden by the top-level
// keys of parsed. Neither argument is modified; both may be nil.
func Merge(defaults, parsed Record) Record {
	out := make(Record, len(defaults)+len(parsed))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range parsed {
		out[k] = v
	}
	return out
}

// Parse decodes the JSON object embedded in rawText. The bool is false when
// no object was found or the candidate span failed to decode. Numbers are
// kept as json.Number so large integers survive unchanged.
func Parse(rawText string) (Record, bool) {
	span, ok := Locate(rawText)
	if !ok {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, false
	}
	// Anything after the object makes the whole span invalid.
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	if rec == nil {
		rec = Record{}
	}
	return rec, true
}

// Locate returns the candidate JSON span of rawText: everything from the
// first '{' to the last '}' inclusive, after trimming and removing a
// surrounding code fence. Braces are not balanced, so a response carrying
// two sibling objects yields one span covering both.
func Locate(rawText string) (string, bool) {
	s := stripFence(strings.TrimSpace(rawText))

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || start > end {
		return "", false
	}
	return s[start : end+1], true
}

// stripFence removes one opening fence (with an optional language tag such
// as "json") and one closing fence, only when s both starts and ends with
// one.
func stripFence(s string) string {
	if len(s) < 2*len(fence) || !strings.HasPrefix(s, fence) || !strings.HasSuffix(s, fence) {
		return s
	}

	inner := s[len(fence) : len(s)-len(fence)]
	i := 0
	for i < len(inner) && isTagByte(inner[i]) {
		i++
	}
	return strings.TrimSpace(inner[i:])
}

func isTagByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '+', c == '.':
		return true
	}
	return false
}
