package bigquery

import (
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/pillguide/internal/domain"
)

var placeholderRe = regexp.MustCompile(`@([a-z_]+)`)

func placeholders(sql string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

func TestInsertModelOutputSQL_ParamsMatchPlaceholders(t *testing.T) {
	row := NewModelOutputRow(&domain.ModelOutput{OutputID: "o1", CallKind: "prescription_ocr"})
	params := modelOutputParams(row)

	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	sort.Strings(names)

	sql := insertModelOutputSQL(tableRef("proj", "ds", modelOutputsTable))
	if diff := cmp.Diff(placeholders(sql), names); diff != "" {
		t.Errorf("placeholder/parameter mismatch (-sql +params):\n%s", diff)
	}
	if !strings.Contains(sql, "`proj.ds.model_outputs`") {
		t.Errorf("insert SQL does not reference the table: %s", sql)
	}
}

func TestListModelOutputsQuery(t *testing.T) {
	table := tableRef("p", "d", modelOutputsTable)

	tests := []struct {
		name      string
		filter    ModelOutputFilter
		wantNames []string
		wantLimit int
	}{
		{"no filter", ModelOutputFilter{}, []string{"limit"}, DefaultListLimit},
		{"subject", ModelOutputFilter{SubjectID: "rx-1", Limit: 5}, []string{"limit", "subject_id"}, 5},
		{
			"all filters",
			ModelOutputFilter{SubjectID: "rx-1", CallKind: "prescription_ocr", Since: civil.Date{Year: 2025, Month: 3, Day: 1}},
			[]string{"call_kind", "limit", "since", "subject_id"},
			DefaultListLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params := listModelOutputsQuery(table, tt.filter)

			var names []string
			for _, p := range params {
				names = append(names, p.Name)
				if p.Name == "limit" && p.Value != tt.wantLimit {
					t.Errorf("limit = %v, want %d", p.Value, tt.wantLimit)
				}
			}
			sort.Strings(names)

			if diff := cmp.Diff(tt.wantNames, names); diff != "" {
				t.Errorf("parameters mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantNames, placeholders(sql)); diff != "" {
				t.Errorf("placeholders mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestModelOutputRow_RoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	out := &domain.ModelOutput{
		OutputID:      "o1",
		SubjectID:     "rx-1",
		CallKind:      "prescription_ocr",
		ModelName:     "gemini-2.5-flash",
		RawText:       "```json\n{}\n```",
		ExtractionHit: true,
		ParsedJSON:    "{}",
		TokensInput:   120,
		TokensOutput:  40,
		CreatedAt:     created,
	}

	row := NewModelOutputRow(out)
	if !row.SubjectID.Valid || !row.ParsedJSON.Valid || !row.TokensInput.Valid {
		t.Errorf("expected nullable fields to be valid: %+v", row)
	}

	if diff := cmp.Diff(*out, row.ModelOutput()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNewModelOutputRow_Nulls(t *testing.T) {
	row := NewModelOutputRow(&domain.ModelOutput{OutputID: "o2", CallKind: "contraindication_check"})

	if row.SubjectID.Valid {
		t.Error("SubjectID should be NULL when empty")
	}
	if row.ParsedJSON.Valid {
		t.Error("ParsedJSON should be NULL on a miss")
	}
	if row.TokensInput.Valid || row.TokensOutput.Valid {
		t.Error("token counts should be NULL when unknown")
	}
	if row.CreatedTS.IsZero() {
		t.Error("CreatedTS should default to now")
	}
}
