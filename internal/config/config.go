package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tatianab/mythic-paths/internal/logging"
	"github.com/tatianab/mythic-paths/internal/models"
)

// ConfigPathEnv names an optional YAML file read before the environment.
const ConfigPathEnv = "MYTHIC_CONFIG"

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey   string         `yaml:"gemini_api_key" env:"GEMINI_API_KEY" env-required:"true"`
	Models         ModelConfig    `yaml:"models"`
	Retry          RetryConfig    `yaml:"retry"`
	PreloadStagger time.Duration  `yaml:"preload_stagger" env:"PRELOAD_STAGGER" env-default:"200ms"`
	Store          StoreConfig    `yaml:"store"`
	Log            logging.Config `yaml:"log"`
	MetricsAddr    string         `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Language       string         `yaml:"language" env:"LANGUAGE"`

	// DefaultLanguage is Language resolved against the supported set.
	DefaultLanguage models.Language `yaml:"-"`
}

// ModelConfig names the backend model used for each kind of call.
type ModelConfig struct {
	Narrative string `yaml:"narrative" env:"NARRATIVE_MODEL" env-default:"gemini-2.5-flash"`
	State     string `yaml:"state" env:"STATE_MODEL" env-default:"gemini-2.5-flash-lite"`
	Character string `yaml:"character" env:"CHARACTER_MODEL" env-default:"gemini-2.5-flash"`
	Image     string `yaml:"image" env:"IMAGE_MODEL" env-default:"gemini-2.5-flash-image"`
}

// RetryConfig bounds the backoff of each kind of call.
type RetryConfig struct {
	NarrativeRetries   int           `yaml:"narrative_retries" env:"NARRATIVE_RETRIES" env-default:"3"`
	NarrativeBaseDelay time.Duration `yaml:"narrative_base_delay" env:"NARRATIVE_BASE_DELAY" env-default:"1s"`
	StateRetries       int           `yaml:"state_retries" env:"STATE_RETRIES" env-default:"1"`
	StateBaseDelay     time.Duration `yaml:"state_base_delay" env:"STATE_BASE_DELAY" env-default:"2s"`
	ImageRetries       int           `yaml:"image_retries" env:"IMAGE_RETRIES" env-default:"2"`
	ImageBaseDelay     time.Duration `yaml:"image_base_delay" env:"IMAGE_BASE_DELAY" env-default:"3s"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver     string `yaml:"driver" env:"STORE_DRIVER" env-default:"file"`
	Path       string `yaml:"path" env:"STORE_PATH" env-default:".saves"`
	QuotaBytes int    `yaml:"quota_bytes" env:"STORE_QUOTA_BYTES" env-default:"5242880"`
}

// LoadConfig loads a .env file if present, then the YAML file named by
// MYTHIC_CONFIG if set, then environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from environment: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	cfg.DefaultLanguage = resolveLanguage(cfg.Language)
	return &cfg, nil
}

// resolveLanguage prefers the configured language, then the process locale,
// then English.
func resolveLanguage(configured string) models.Language {
	if l, ok := models.MatchLanguage(configured); ok {
		return l
	}
	if l, ok := models.MatchLanguage(os.Getenv("LANG")); ok {
		return l
	}
	return models.English
}
