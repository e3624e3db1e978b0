package config

import (
	"time"

	iconfig "github.com/nvakili/kashef/shared/config"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Discovery DiscoveryConfig
	Extractor ExtractorConfig
	Otel      OtelConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
}

type DatabaseConfig struct {
	URL string
}

type DiscoveryConfig struct {
	TurnTimeout       time.Duration
	IdempotencyWindow time.Duration
	StateTTL          time.Duration
	JanitorInterval   time.Duration
}

// ExtractorConfig points at an OpenAI-compatible completion endpoint. When
// BaseURL is empty the rule extractor runs alone.
type ExtractorConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OtelConfig struct {
	Enabled     bool
	Environment string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           iconfig.String("0.0.0.0", "KASHEF_SERVER_HOST", "HOST"),
			Port:           iconfig.Int(8080, "KASHEF_SERVER_PORT", "PORT"),
			AllowedOrigins: iconfig.Slice([]string{"*"}, "KASHEF_ALLOWED_ORIGINS", "ALLOWED_ORIGINS"),
			RateLimit:      iconfig.Float(10, "KASHEF_RATE_LIMIT"),
			RateBurst:      iconfig.Int(20, "KASHEF_RATE_BURST"),
		},
		Database: DatabaseConfig{
			URL: iconfig.String("postgres://localhost:5432/kashef?sslmode=disable", "KASHEF_POSTGRES_URL", "DATABASE_URL"),
		},
		Discovery: DiscoveryConfig{
			TurnTimeout:       iconfig.Duration(25*time.Second, "KASHEF_TURN_TIMEOUT"),
			IdempotencyWindow: iconfig.Duration(time.Minute, "KASHEF_IDEMPOTENCY_WINDOW"),
			StateTTL:          iconfig.Duration(15*time.Minute, "KASHEF_STATE_TTL"),
			JanitorInterval:   iconfig.Duration(time.Minute, "KASHEF_JANITOR_INTERVAL"),
		},
		Extractor: ExtractorConfig{
			BaseURL: iconfig.String("", "KASHEF_EXTRACTOR_BASE_URL", "OPENAI_BASE_URL"),
			APIKey:  iconfig.String("", "KASHEF_EXTRACTOR_API_KEY", "OPENAI_API_KEY"),
			Model:   iconfig.String("gpt-4o-mini", "KASHEF_EXTRACTOR_MODEL"),
		},
		Otel: OtelConfig{
			Enabled:     iconfig.Bool(false, "KASHEF_OTEL_ENABLED"),
			Environment: iconfig.String("development", "KASHEF_ENVIRONMENT", "ENVIRONMENT"),
		},
	}
}

func (c *Config) IsExtractorConfigured() bool {
	return c.Extractor.BaseURL != ""
}
