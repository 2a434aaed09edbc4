package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// fakeGenerator records calls and replays scripted results.
type fakeGenerator struct {
	GenerateContentFunc func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	calls               int
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	return f.GenerateContentFunc(f.calls, model, contents, config)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: text}}}},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 34,
		},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 3
	cfg.RetryDelay = time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func TestGeminiClient_Generate(t *testing.T) {
	fake := &fakeGenerator{
		GenerateContentFunc: func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if model != "gemini-2.5-flash" {
				t.Errorf("model = %q, want gemini-2.5-flash", model)
			}
			if len(contents) != 1 || len(contents[0].Parts) != 2 {
				t.Fatalf("contents = %+v, want one content with prompt and image", contents)
			}
			if contents[0].Parts[0].Text != "read this" {
				t.Errorf("prompt part = %q, want %q", contents[0].Parts[0].Text, "read this")
			}
			blob := contents[0].Parts[1].InlineData
			if blob == nil || blob.MIMEType != "image/jpeg" || string(blob.Data) != "img" {
				t.Errorf("image part = %+v, want image/jpeg bytes", blob)
			}
			if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be careful" {
				t.Errorf("system instruction = %+v", config.SystemInstruction)
			}
			if *config.Temperature != 0.3 || *config.TopP != 0.95 || *config.TopK != 40 || config.MaxOutputTokens != 2048 {
				t.Errorf("generation config = %+v", config)
			}
			if len(config.SafetySettings) != 4 {
				t.Errorf("got %d safety settings, want 4", len(config.SafetySettings))
			}
			for _, s := range config.SafetySettings {
				if s.Threshold != genai.HarmBlockThresholdBlockNone {
					t.Errorf("threshold for %s = %s, want BLOCK_NONE", s.Category, s.Threshold)
				}
			}
			return textResponse(`{"ok": true}`), nil
		},
	}
	client := newGeminiClient(fake, testConfig(), zerolog.Nop())

	resp, err := client.Generate(context.Background(), Request{
		Kind:              CallPrescriptionOCR,
		SystemInstruction: "be careful",
		Prompt:            "read this",
		Image:             []byte("img"),
		ImageMIMEType:     "image/jpeg",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != `{"ok": true}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.TokensInput != 12 || resp.TokensOutput != 34 {
		t.Errorf("tokens = %d/%d, want 12/34", resp.TokensInput, resp.TokensOutput)
	}
	if resp.ModelName != "gemini-2.5-flash" {
		t.Errorf("ModelName = %q", resp.ModelName)
	}
}

func TestGeminiClient_Generate_TextOnly(t *testing.T) {
	fake := &fakeGenerator{
		GenerateContentFunc: func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if len(contents[0].Parts) != 1 {
				t.Errorf("got %d parts, want prompt only", len(contents[0].Parts))
			}
			if config.SystemInstruction != nil {
				t.Errorf("system instruction set without one in the request")
			}
			return textResponse("hi"), nil
		},
	}
	client := newGeminiClient(fake, testConfig(), zerolog.Nop())

	if _, err := client.Generate(context.Background(), Request{Prompt: "hello"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestGeminiClient_Generate_RetriesTransientErrors(t *testing.T) {
	fake := &fakeGenerator{
		GenerateContentFunc: func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			if call < 3 {
				return nil, genai.APIError{Code: 503, Status: "UNAVAILABLE", Message: "overloaded"}
			}
			return textResponse("third time lucky"), nil
		},
	}
	client := newGeminiClient(fake, testConfig(), zerolog.Nop())

	resp, err := client.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "third time lucky" {
		t.Errorf("Text = %q", resp.Text)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestGeminiClient_Generate_DoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid key", genai.APIError{Code: 403, Status: "PERMISSION_DENIED", Message: "API key not valid"}},
		{"bad request", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}},
		{"pointer api error", &genai.APIError{Code: 404, Status: "NOT_FOUND"}},
		{"unknown error", errors.New("unsupported image")},
		{"cancelled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGenerator{
				GenerateContentFunc: func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					return nil, tt.err
				},
			}
			client := newGeminiClient(fake, testConfig(), zerolog.Nop())

			if _, err := client.Generate(context.Background(), Request{Prompt: "p"}); err == nil {
				t.Fatal("Generate() error = nil, want error")
			}
			if fake.calls != 1 {
				t.Errorf("calls = %d, want 1", fake.calls)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", genai.APIError{Code: 429}, true},
		{"server error", genai.APIError{Code: 500}, true},
		{"request timeout", genai.APIError{Code: 408}, true},
		{"wrapped unavailable", fmt.Errorf("call: %w", genai.APIError{Code: 503}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"empty answer", ErrEmptyResponse, true},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"unauthorized", genai.APIError{Code: 401}, false},
		{"bad request", genai.APIError{Code: 400}, false},
		{"cancelled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestGeminiClient_Generate_EmptyResponse(t *testing.T) {
	fake := &fakeGenerator{
		GenerateContentFunc: func(call int, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		},
	}
	client := newGeminiClient(fake, testConfig(), zerolog.Nop())

	_, err := client.Generate(context.Background(), Request{Kind: CallContraindicationCheck, Prompt: "p"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Generate() error = %v, want ErrEmptyResponse", err)
	}
	if fake.calls != 3 {
		t.Errorf("calls = %d, want 3", fake.calls)
	}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background(), Config{}, zerolog.Nop()); err == nil {
		t.Error("NewGeminiClient() with no key returned nil error")
	}
}

func TestNewGeminiClient_FillsDefaults(t *testing.T) {
	client := newGeminiClient(&fakeGenerator{}, Config{APIKey: "k"}, zerolog.Nop())

	def := DefaultConfig()
	if client.cfg.Model != def.Model || client.cfg.RetryAttempts != def.RetryAttempts || client.cfg.Timeout != def.Timeout {
		t.Errorf("cfg = %+v, want defaults filled", client.cfg)
	}
}
