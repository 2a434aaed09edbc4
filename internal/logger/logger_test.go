package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("GetLevel() = %v, want info", log.GetLevel())
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestNewWithOptions(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		wantJSON bool
	}{
		{"production writes json", Options{Environment: "production", Service: "pillguide-api"}, true},
		{"production is case insensitive", Options{Environment: "PRODUCTION"}, true},
		{"development writes console", Options{Environment: "development", Service: "pillguide-api"}, false},
		{"empty environment writes console", Options{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.opts.Writer = buf
			log := NewWithOptions(tt.opts)

			log.Info().Str("prescription_id", "rx-1").Msg("analysed")

			var line map[string]any
			err := json.Unmarshal(buf.Bytes(), &line)
			if tt.wantJSON && err != nil {
				t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
			}
			if !tt.wantJSON && err == nil {
				t.Fatalf("expected console output, got JSON: %s", buf.String())
			}
			if !strings.Contains(buf.String(), "rx-1") {
				t.Errorf("output missing field value: %s", buf.String())
			}
			if tt.opts.Service != "" && !strings.Contains(buf.String(), tt.opts.Service) {
				t.Errorf("output missing service %q: %s", tt.opts.Service, buf.String())
			}
		})
	}
}

func TestNewWithOptions_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithOptions(Options{Environment: Production, Level: "error", Writer: buf})

	log.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info line written at error level: %s", buf.String())
	}

	log.Error().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("error line missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := &bytes.Buffer{}
	carried := &bytes.Buffer{}

	log := FromContextOr(context.Background(), NewWithWriter(fallback))
	log.Info().Msg("fallback")
	if fallback.Len() == 0 {
		t.Error("fallback logger not returned for an empty context")
	}

	ctx := WithContext(context.Background(), NewWithWriter(carried))
	FromContextOr(ctx, NewWithWriter(fallback)).Info().Msg("carried")
	if !strings.Contains(carried.String(), "carried") || strings.Contains(fallback.String(), "carried") {
		t.Errorf("context logger not preferred: carried %q, fallback %q", carried.String(), fallback.String())
	}
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	logWithFields := WithFields(log, map[string]any{
		"prescription_id": "rx-123",
		"patient_id":      "",
		"medications":     2,
	})
	logWithFields.Info().Msg("test message")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["prescription_id"] != "rx-123" {
		t.Errorf("prescription_id = %v, want rx-123", line["prescription_id"])
	}
	if line["medications"] != float64(2) {
		t.Errorf("medications = %v, want 2", line["medications"])
	}
	if _, ok := line["patient_id"]; ok {
		t.Errorf("empty patient_id should be skipped: %s", buf.String())
	}
}
