// Package config loads service configuration from the environment, with an
// optional .env file, and hands it to the rest of the service explicitly.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete service configuration.
type Config struct {
	Port string

	MongoURL string
	DBName   string

	AI AIConfig

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string

	// Optional integrations, disabled when empty.
	GCSBucket       string
	BigQueryProject string
	BigQueryDataset string
	SentryDSN       string

	Environment string
	LogLevel    string
}

// AIConfig configures the inference client.
type AIConfig struct {
	APIKey        string
	Model         string
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
}

// Defaults.
const (
	DefaultPort            = "8080"
	DefaultMongoURL        = "mongodb://localhost:27017"
	DefaultDBName          = "pillguide"
	DefaultModel           = "gemini-2.5-flash"
	DefaultAITimeout       = 60 * time.Second
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = 2 * time.Second
	DefaultBigQueryDataset = "pillguide"
)

// Load reads envFile into the process environment when it exists (existing
// variables win) and then resolves every setting from the environment or
// its default. Pass "" to skip the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("config: binding environment: %w", err)
	}

	cfg := &Config{
		Port:     v.GetString("port"),
		MongoURL: v.GetString("mongo_url"),
		DBName:   v.GetString("db_name"),
		AI: AIConfig{
			APIKey:        v.GetString("gemini_api_key"),
			Model:         v.GetString("gemini_model"),
			Timeout:       v.GetDuration("ai_timeout"),
			RetryAttempts: v.GetUint("ai_retry_attempts"),
			RetryDelay:    v.GetDuration("ai_retry_delay"),
		},
		CORSOrigins:     splitList(v.GetString("cors_origins")),
		GCSBucket:       v.GetString("gcs_bucket"),
		BigQueryProject: v.GetString("bigquery_project"),
		BigQueryDataset: v.GetString("bigquery_dataset"),
		SentryDSN:       v.GetString("sentry_dsn"),
		Environment:     v.GetString("environment"),
		LogLevel:        v.GetString("log_level"),
	}

	return cfg, nil
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AI.APIKey) == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY (or EMERGENT_LLM_KEY) is required"))
	}
	if c.AI.RetryAttempts == 0 {
		errs = append(errs, errors.New("AI_RETRY_ATTEMPTS must be positive"))
	}
	if c.AI.Timeout <= 0 {
		errs = append(errs, errors.New("AI_TIMEOUT must be positive"))
	}
	if c.MongoURL == "" || c.DBName == "" {
		errs = append(errs, errors.New("MONGO_URL and DB_NAME are required"))
	}
	return errors.Join(errs...)
}

// BigQueryEnabled reports whether model outputs should be recorded.
func (c *Config) BigQueryEnabled() bool {
	return c.BigQueryProject != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("mongo_url", DefaultMongoURL)
	v.SetDefault("db_name", DefaultDBName)
	v.SetDefault("gemini_model", DefaultModel)
	v.SetDefault("ai_timeout", DefaultAITimeout)
	v.SetDefault("ai_retry_attempts", DefaultRetryAttempts)
	v.SetDefault("ai_retry_delay", DefaultRetryDelay)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("bigquery_dataset", DefaultBigQueryDataset)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
}

func bindEnv(v *viper.Viper) error {
	bindings := [][]string{
		{"port", "PORT"},
		{"mongo_url", "MONGO_URL"},
		{"db_name", "DB_NAME"},
		{"gemini_api_key", "GEMINI_API_KEY", "EMERGENT_LLM_KEY"},
		{"gemini_model", "GEMINI_MODEL"},
		{"ai_timeout", "AI_TIMEOUT"},
		{"ai_retry_attempts", "AI_RETRY_ATTEMPTS"},
		{"ai_retry_delay", "AI_RETRY_DELAY"},
		{"cors_origins", "CORS_ORIGINS"},
		{"gcs_bucket", "GCS_BUCKET"},
		{"bigquery_project", "BIGQUERY_PROJECT"},
		{"bigquery_dataset", "BIGQUERY_DATASET"},
		{"sentry_dsn", "SENTRY_DSN"},
		{"environment", "ENVIRONMENT"},
		{"log_level", "LOG_LEVEL"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
