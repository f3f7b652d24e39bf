package core

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Image generation backends selectable with BACKEND.
const (
	BackendWebUI  = "webui"
	BackendOpenAI = "openai"
	BackendSD     = "sd"
	BackendNull   = "null"
)

// Backends lists the accepted BACKEND values.
var Backends = []string{BackendWebUI, BackendOpenAI, BackendSD, BackendNull}

// Config holds all configuration values
type Config struct {
	// Wildcards
	WildcardDir       string
	MaxCombinations   int
	MaxRecursionDepth int
	VariantPolicy     string // random or cycle

	// Job processing
	MaxRetries     int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
	AttemptTimeout time.Duration
	Workers        int

	// Backend selection and credentials
	Backend      string
	WebUIURL     string
	WebUIAuth    string // user:password for --api-auth
	OpenAIAPIKey string
	OpenAIURL    string // optional base URL override
	ImageModel   string
	SDModelPath  string

	// Output
	OutputDir     string
	ThumbnailSize int    // longest edge of preview thumbnails; 0 disables
	HistoryDB     string // empty disables job history

	// Logging
	LogFile  string
	LogLevel string
	DevMode  bool
}

// LoadConfig loads configuration from environment variables with defaults
// that work against a local SD WebUI.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		WildcardDir:       GetEnvOrDefault("WILDCARD_DIR", "./wildcards"),
		MaxCombinations:   ParseIntEnv("MAX_COMBINATIONS", 1000),
		MaxRecursionDepth: ParseIntEnv("MAX_RECURSION_DEPTH", 32),
		VariantPolicy:     strings.ToLower(GetEnvOrDefault("VARIANT_POLICY", "random")),

		MaxRetries:     ParseIntEnv("MAX_RETRIES", 3),
		RetryDelay:     ParseMillisEnv("RETRY_DELAY_MS", 1000),
		RetryMaxDelay:  ParseMillisEnv("RETRY_MAX_DELAY_MS", 30000),
		AttemptTimeout: ParseDurationEnv("ATTEMPT_TIMEOUT", 120),
		Workers:        ParseIntEnv("WORKERS", 1),

		Backend:      strings.ToLower(GetEnvOrDefault("BACKEND", BackendWebUI)),
		WebUIURL:     GetEnvOrDefault("WEBUI_URL", "http://127.0.0.1:7860"),
		WebUIAuth:    os.Getenv("WEBUI_AUTH"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIURL:    os.Getenv("OPENAI_BASE_URL"),
		ImageModel:   os.Getenv("IMAGE_MODEL"),
		SDModelPath:  os.Getenv("SD_MODEL_PATH"),

		OutputDir:     GetEnvOrDefault("OUTPUT_DIR", "./output"),
		ThumbnailSize: ParseIntEnv("THUMBNAIL_SIZE", 0),
		HistoryDB:     GetEnvOrDefault("HISTORY_DB", "promptbatch.db"),

		LogFile:  os.Getenv("LOG_FILE"),
		LogLevel: GetEnvOrDefault("LOG_LEVEL", "info"),
		DevMode:  ParseBoolEnv("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and backend prerequisites. The first problem found
// is returned as a *ConfigError.
func (c *Config) Validate() error {
	switch {
	case c.WildcardDir == "":
		return ErrMissingConfig("WILDCARD_DIR")
	case c.MaxCombinations < 1:
		return ErrInvalidValue("MAX_COMBINATIONS", c.MaxCombinations, "must be at least 1")
	case c.MaxRecursionDepth < 1:
		return ErrInvalidValue("MAX_RECURSION_DEPTH", c.MaxRecursionDepth, "must be at least 1")
	case c.VariantPolicy != "random" && c.VariantPolicy != "cycle":
		return ErrInvalidValue("VARIANT_POLICY", c.VariantPolicy, "must be random or cycle")
	case c.MaxRetries < 0:
		return ErrInvalidValue("MAX_RETRIES", c.MaxRetries, "must not be negative")
	case c.RetryDelay <= 0:
		return ErrInvalidValue("RETRY_DELAY_MS", c.RetryDelay, "must be positive")
	case c.RetryMaxDelay < c.RetryDelay:
		return ErrInvalidValue("RETRY_MAX_DELAY_MS", c.RetryMaxDelay, "must not be below RETRY_DELAY_MS")
	case c.AttemptTimeout <= 0:
		return ErrInvalidValue("ATTEMPT_TIMEOUT", c.AttemptTimeout, "must be positive")
	case c.Workers < 1:
		return ErrInvalidValue("WORKERS", c.Workers, "must be at least 1")
	case c.ThumbnailSize < 0:
		return ErrInvalidValue("THUMBNAIL_SIZE", c.ThumbnailSize, "must not be negative")
	}

	switch c.Backend {
	case BackendWebUI:
		u, err := url.Parse(c.WebUIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrInvalidServerURL(c.WebUIURL, "expected http(s)://host[:port]")
		}
		if c.WebUIAuth != "" && !strings.Contains(c.WebUIAuth, ":") {
			return ErrInvalidValue("WEBUI_AUTH", "[REDACTED]", "must be user:password")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return ErrMissingAuth(BackendOpenAI)
		}
	case BackendSD:
		if c.SDModelPath == "" {
			return ErrMissingConfig("SD_MODEL_PATH")
		}
	case BackendNull:
	default:
		return ErrInvalidValue("BACKEND", c.Backend, "must be one of "+strings.Join(Backends, ", "))
	}
	return nil
}

// HistoryEnabled reports whether finished jobs are archived.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != "" && c.HistoryDB != "off"
}

// String summarizes the configuration without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("backend=%s workers=%d retries=%d timeout=%s wildcards=%s output=%s",
		c.Backend, c.Workers, c.MaxRetries, c.AttemptTimeout, c.WildcardDir, c.OutputDir)
}
