package domain

import "time"

// ModelOutput is one raw model answer and how extraction went, kept for
// auditing prompts against real responses.
type ModelOutput struct {
	OutputID  string
	SubjectID string // prescription or medication the call was made for
	CallKind  string
	ModelName string
	RawText   string

	// ExtractionHit is false when no JSON object could be parsed and the
	// defaults were used.
	ExtractionHit bool
	ParsedJSON    string

	TokensInput  int64
	TokensOutput int64
	CreatedAt    time.Time
}
