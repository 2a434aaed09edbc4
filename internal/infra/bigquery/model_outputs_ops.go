package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dvloznov/pillguide/internal/domain"
)

// DefaultListLimit bounds ListModelOutputs when no limit is given.
const DefaultListLimit = 100

// ModelOutputRecorder writes model outputs to BigQuery. It holds a shared
// client so each insert does not open a new connection.
type ModelOutputRecorder struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewModelOutputRecorder creates a recorder for projectID.datasetID.
func NewModelOutputRecorder(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*ModelOutputRecorder, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewModelOutputRecorder: creating client: %w", err)
	}
	return NewModelOutputRecorderWithClient(client, projectID, datasetID), nil
}

// NewModelOutputRecorderWithClient creates a recorder over an existing client.
func NewModelOutputRecorderWithClient(client *bigquery.Client, projectID, datasetID string) *ModelOutputRecorder {
	return &ModelOutputRecorder{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *ModelOutputRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// RecordModelOutput inserts one output. Uses DML INSERT to avoid streaming
// buffer issues.
func (r *ModelOutputRecorder) RecordModelOutput(ctx context.Context, out *domain.ModelOutput) error {
	row := NewModelOutputRow(out)

	q := r.client.Query(insertModelOutputSQL(tableRef(r.projectID, r.datasetID, modelOutputsTable)))
	q.Parameters = modelOutputParams(row)

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("RecordModelOutput: running insert query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("RecordModelOutput: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("RecordModelOutput: job error: %w", err)
	}

	return nil
}

// ModelOutputFilter narrows ListModelOutputs. Zero fields match everything.
type ModelOutputFilter struct {
	SubjectID string
	CallKind  string
	// Since keeps outputs recorded on or after this date (UTC).
	Since civil.Date
	Limit int
}

// ListModelOutputs returns the newest outputs first.
func (r *ModelOutputRecorder) ListModelOutputs(ctx context.Context, filter ModelOutputFilter) ([]domain.ModelOutput, error) {
	sql, params := listModelOutputsQuery(tableRef(r.projectID, r.datasetID, modelOutputsTable), filter)

	q := r.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListModelOutputs: reading query: %w", err)
	}

	outputs := []domain.ModelOutput{}
	for {
		var row ModelOutputRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListModelOutputs: iterating: %w", err)
		}
		outputs = append(outputs, row.ModelOutput())
	}

	return outputs, nil
}

func tableRef(projectID, datasetID, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table)
}

func insertModelOutputSQL(table string) string {
	return `
		INSERT INTO ` + table + ` (
			output_id, subject_id, call_kind, model_name,
			raw_text, extraction_hit, parsed_json,
			tokens_input, tokens_output, created_ts
		)
		VALUES (
			@output_id, @subject_id, @call_kind, @model_name,
			@raw_text, @extraction_hit, SAFE.PARSE_JSON(@parsed_json),
			@tokens_input, @tokens_output, @created_ts
		)
	`
}

func modelOutputParams(row *ModelOutputRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "subject_id", Value: row.SubjectID},
		{Name: "call_kind", Value: row.CallKind},
		{Name: "model_name", Value: row.ModelName},
		{Name: "raw_text", Value: row.RawText},
		{Name: "extraction_hit", Value: row.ExtractionHit},
		{Name: "parsed_json", Value: bigquery.NullString{StringVal: row.ParsedJSON.JSONVal, Valid: row.ParsedJSON.Valid}},
		{Name: "tokens_input", Value: row.TokensInput},
		{Name: "tokens_output", Value: row.TokensOutput},
		{Name: "created_ts", Value: row.CreatedTS},
	}
}

func listModelOutputsQuery(table string, filter ModelOutputFilter) (string, []bigquery.QueryParameter) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var where []string
	params := []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	if filter.SubjectID != "" {
		where = append(where, "subject_id = @subject_id")
		params = append(params, bigquery.QueryParameter{Name: "subject_id", Value: filter.SubjectID})
	}
	if filter.CallKind != "" {
		where = append(where, "call_kind = @call_kind")
		params = append(params, bigquery.QueryParameter{Name: "call_kind", Value: filter.CallKind})
	}
	if filter.Since.IsValid() {
		where = append(where, "DATE(created_ts) >= @since")
		params = append(params, bigquery.QueryParameter{Name: "since", Value: filter.Since})
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	sql := fmt.Sprintf(`
		SELECT
			output_id,
			subject_id,
			call_kind,
			model_name,
			raw_text,
			extraction_hit,
			parsed_json,
			tokens_input,
			tokens_output,
			created_ts
		FROM %s
		%s
		ORDER BY created_ts DESC
		LIMIT @limit
	`, table, clause)

	return sql, params
}
