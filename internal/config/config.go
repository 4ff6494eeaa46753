// Package config loads recast configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/abdulachik/recast/internal/content"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	DatabasePath   string
	StyleIndexPath string // VecLite archive of published posts
	VecLiteConfig  string // veclite.yaml with the embedder settings

	// Generative backend
	LLMProvider     string // anthropic or gemini
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string

	// Credentials at rest
	CredentialSecret string

	// X/Twitter
	TwitterClientID     string
	TwitterClientSecret string
	TwitterAPIURL       string
	TwitterUploadURL    string

	// LinkedIn
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInAPIURL       string

	// Edition source. Without a Beehiiv key editions are scraped.
	BeehiivAPIKey        string
	BeehiivPublicationID string

	RendererURL      string
	LinkCacheURL     string // redis:// URL; empty keeps the cache in memory
	NotifyWebhookURL string

	// Logging
	LogLevel string

	// Timeouts
	StageTimeout     time.Duration
	GeneratorTimeout time.Duration
	PublishTimeout   time.Duration

	// Publishing and retry
	SettleDelay      time.Duration
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	// Pipeline tuning
	UnitConcurrency int
	MaxSections     int
	MainStoryRatio  float64

	// Feature toggles
	EnableImageFilter bool
	EnableLinkFilter  bool
	EnableFinalReview bool

	// Scheduler and server
	PollInterval time.Duration
	MetricsAddr  string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:         getEnv("DATABASE_PATH", "data/recast.db"),
		StyleIndexPath:       getEnv("STYLE_INDEX_PATH", "data/style.veclite"),
		VecLiteConfig:        getEnv("VECLITE_CONFIG", "veclite.yaml"),
		LLMProvider:          strings.ToLower(getEnv("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", ""),
		CredentialSecret:     getEnv("CREDENTIAL_SECRET", ""),
		TwitterClientID:      getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:  getEnv("TWITTER_CLIENT_SECRET", ""),
		TwitterAPIURL:        getEnv("TWITTER_API_URL", "https://api.x.com"),
		TwitterUploadURL:     getEnv("TWITTER_UPLOAD_URL", "https://upload.twitter.com"),
		LinkedInClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedInAPIURL:       getEnv("LINKEDIN_API_URL", "https://api.linkedin.com"),
		BeehiivAPIKey:        getEnv("BEEHIIV_API_KEY", ""),
		BeehiivPublicationID: getEnv("BEEHIIV_PUBLICATION_ID", ""),
		RendererURL:          getEnv("RENDERER_URL", ""),
		LinkCacheURL:         getEnv("LINK_CACHE_URL", ""),
		NotifyWebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		MetricsAddr:          getEnv("METRICS_ADDR", ":9090"),
	}

	var err error
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"STAGE_TIMEOUT", "60s", &cfg.StageTimeout},
		{"GENERATOR_TIMEOUT", "90s", &cfg.GeneratorTimeout},
		{"PUBLISH_TIMEOUT", "15m", &cfg.PublishTimeout},
		{"SETTLE_DELAY", "5s", &cfg.SettleDelay},
		{"RETRY_BASE_DELAY", "10s", &cfg.RetryBaseDelay},
		{"RETRY_MAX_DELAY", "5m", &cfg.RetryMaxDelay},
		{"POLL_INTERVAL", "30s", &cfg.PollInterval},
	}
	for _, d := range durations {
		*d.dest, err = time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	ints := []struct {
		key  string
		def  string
		dest *int
	}{
		{"RETRY_MAX_ATTEMPTS", "5", &cfg.RetryMaxAttempts},
		{"UNIT_CONCURRENCY", "4", &cfg.UnitConcurrency},
		{"MAX_SECTIONS", "5", &cfg.MaxSections},
	}
	for _, n := range ints {
		*n.dest, err = strconv.Atoi(getEnv(n.key, n.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", n.key, err)
		}
	}

	cfg.MainStoryRatio, err = strconv.ParseFloat(getEnv("MAIN_STORY_RATIO", "1.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIN_STORY_RATIO: %w", err)
	}

	bools := []struct {
		key  string
		def  string
		dest *bool
	}{
		{"ENABLE_IMAGE_FILTER", "true", &cfg.EnableImageFilter},
		{"ENABLE_LINK_FILTER", "true", &cfg.EnableLinkFilter},
		{"ENABLE_FINAL_REVIEW", "false", &cfg.EnableFinalReview},
	}
	for _, b := range bools {
		*b.dest, err = strconv.ParseBool(getEnv(b.key, b.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", b.key, err)
		}
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: DATABASE_PATH is required", content.ErrConfiguration)
	}
	if c.UnitConcurrency < 1 {
		return fmt.Errorf("%w: UNIT_CONCURRENCY must be at least 1", content.ErrConfiguration)
	}
	if c.MainStoryRatio <= 1 {
		return fmt.Errorf("%w: MAIN_STORY_RATIO must be greater than 1", content.ErrConfiguration)
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("%w: RETRY_MAX_ATTEMPTS must not be negative", content.ErrConfiguration)
	}
	return nil
}

// ValidateForGeneration checks configuration needed to call the generative
// backend.
func (c *Config) ValidateForGeneration() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.LLMProvider {
	case "anthropic", "":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is required for generation", content.ErrConfiguration)
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required when LLM_PROVIDER is gemini", content.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: invalid LLM_PROVIDER: %s (must be 'anthropic' or 'gemini')", content.ErrConfiguration, c.LLMProvider)
	}
	if c.BeehiivAPIKey != "" && c.BeehiivPublicationID == "" {
		return fmt.Errorf("%w: BEEHIIV_PUBLICATION_ID is required with BEEHIIV_API_KEY", content.ErrConfiguration)
	}
	return nil
}

// ValidateForCredentials checks configuration needed to read or write the
// credential store.
func (c *Config) ValidateForCredentials() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CredentialSecret == "" {
		return fmt.Errorf("%w: CREDENTIAL_SECRET is required", content.ErrConfiguration)
	}
	return nil
}

// ValidateForPublishing checks configuration needed for posting.
func (c *Config) ValidateForPublishing() error {
	if err := c.ValidateForGeneration(); err != nil {
		return err
	}
	if err := c.ValidateForCredentials(); err != nil {
		return err
	}
	if c.TwitterClientID == "" && c.LinkedInClientID == "" {
		return fmt.Errorf("%w: TWITTER_CLIENT_ID or LINKEDIN_CLIENT_ID is required for publishing", content.ErrConfiguration)
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForGeneration(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", content.ErrConfiguration)
	}
	if c.MetricsAddr == "" {
		return fmt.Errorf("%w: METRICS_ADDR is required for serve", content.ErrConfiguration)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
