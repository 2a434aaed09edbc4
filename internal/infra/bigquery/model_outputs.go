package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/pillguide/internal/domain"
)

const modelOutputsTable = "model_outputs"

// ModelOutputRow is one row of <dataset>.model_outputs.
type ModelOutputRow struct {
	OutputID  string              `bigquery:"output_id"`  // REQUIRED
	SubjectID bigquery.NullString `bigquery:"subject_id"` // NULLABLE, empty for contraindication checks
	CallKind  string              `bigquery:"call_kind"`  // REQUIRED
	ModelName string              `bigquery:"model_name"` // REQUIRED

	RawText       string            `bigquery:"raw_text"`       // REQUIRED
	ExtractionHit bool              `bigquery:"extraction_hit"` // REQUIRED
	ParsedJSON    bigquery.NullJSON `bigquery:"parsed_json"`    // NULLABLE, set on hits only

	TokensInput  bigquery.NullInt64 `bigquery:"tokens_input"`  // NULLABLE
	TokensOutput bigquery.NullInt64 `bigquery:"tokens_output"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewModelOutputRow converts a recorded model output to a table row.
func NewModelOutputRow(out *domain.ModelOutput) *ModelOutputRow {
	row := &ModelOutputRow{
		OutputID:      out.OutputID,
		SubjectID:     bigquery.NullString{StringVal: out.SubjectID, Valid: out.SubjectID != ""},
		CallKind:      out.CallKind,
		ModelName:     out.ModelName,
		RawText:       out.RawText,
		ExtractionHit: out.ExtractionHit,
		ParsedJSON:    bigquery.NullJSON{JSONVal: out.ParsedJSON, Valid: out.ParsedJSON != ""},
		TokensInput:   bigquery.NullInt64{Int64: out.TokensInput, Valid: out.TokensInput > 0},
		TokensOutput:  bigquery.NullInt64{Int64: out.TokensOutput, Valid: out.TokensOutput > 0},
		CreatedTS:     out.CreatedAt,
	}
	if row.CreatedTS.IsZero() {
		row.CreatedTS = time.Now().UTC()
	}
	return row
}

// ModelOutput converts the row back to the domain type.
func (r *ModelOutputRow) ModelOutput() domain.ModelOutput {
	return domain.ModelOutput{
		OutputID:      r.OutputID,
		SubjectID:     r.SubjectID.StringVal,
		CallKind:      r.CallKind,
		ModelName:     r.ModelName,
		RawText:       r.RawText,
		ExtractionHit: r.ExtractionHit,
		ParsedJSON:    r.ParsedJSON.JSONVal,
		TokensInput:   r.TokensInput.Int64,
		TokensOutput:  r.TokensOutput.Int64,
		CreatedAt:     r.CreatedTS,
	}
}
