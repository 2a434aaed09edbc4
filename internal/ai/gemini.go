package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient is the Client backed by the Gemini API.
type GeminiClient struct {
	models contentGenerator
	cfg    Config
	log    zerolog.Logger
}

// NewGeminiClient creates a Gemini API client with the given config.
// Zero-valued generation settings are filled from DefaultConfig.
func NewGeminiClient(ctx context.Context, cfg Config, log zerolog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("NewGeminiClient: API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}

	return newGeminiClient(client.Models, cfg, log), nil
}

func newGeminiClient(models contentGenerator, cfg Config, log zerolog.Logger) *GeminiClient {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.TopP == 0 {
		cfg.TopP = def.TopP
	}
	if cfg.TopK == 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = def.RetryAttempts
	}
	return &GeminiClient{models: models, cfg: cfg, log: log}
}

// Generate sends req to the model, retrying transient failures. An empty
// answer counts as a failure.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	contents := []*genai.Content{genai.NewContentFromParts(c.parts(req), genai.RoleUser)}
	config := c.generateConfig(req)

	var out *Response
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()

			resp, err := c.models.GenerateContent(callCtx, c.cfg.Model, contents, config)
			if err != nil {
				return err
			}
			text := resp.Text()
			if text == "" {
				return ErrEmptyResponse
			}

			out = &Response{Text: text, ModelName: c.cfg.Model}
			if resp.ModelVersion != "" {
				out.ModelName = resp.ModelVersion
			}
			if resp.UsageMetadata != nil {
				out.TokensInput = int64(resp.UsageMetadata.PromptTokenCount)
				out.TokensOutput = int64(resp.UsageMetadata.CandidatesTokenCount)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.RetryAttempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn().
				Err(err).
				Str("call_kind", string(req.Kind)).
				Str("model", c.cfg.Model).
				Uint("attempt", n+1).
				Msg("Model call failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("Generate %s: %w", req.Kind, err)
	}

	c.log.Debug().
		Str("call_kind", string(req.Kind)).
		Str("model", out.ModelName).
		Int64("tokens_input", out.TokensInput).
		Int64("tokens_output", out.TokensOutput).
		Msg("Model call completed")

	return out, nil
}

// retryable reports whether a failed call may succeed when repeated:
// timeouts, network errors, empty answers and 408, 429 or 5xx responses.
// Other API errors, such as a rejected key or a bad request, are final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrEmptyResponse):
		return true
	}

	if code, ok := apiErrorCode(err); ok {
		return code == http.StatusRequestTimeout ||
			code == http.StatusTooManyRequests ||
			code >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// apiErrorCode returns the HTTP status of a Gemini API error. The SDK
// returns APIError by value, but a pointer is accepted too.
func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func (c *GeminiClient) parts(req Request) []*genai.Part {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		mime := req.ImageMIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(req.Image, mime))
	}
	return parts
}

func (c *GeminiClient) generateConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		TopP:            genai.Ptr(c.cfg.TopP),
		TopK:            genai.Ptr(c.cfg.TopK),
		MaxOutputTokens: c.cfg.MaxOutputTokens,
		SafetySettings:  safetySettings(),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return config
}

// safetySettings disables blocking for the four harm categories; drug
// names and side effects otherwise trip the dangerous-content filter.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryHarassment,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, cat := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}
