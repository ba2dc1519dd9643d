package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stylegen/internal/generation"
	"stylegen/internal/styles"
	"stylegen/internal/upload"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// writeGrace keeps the write deadline past the request deadline so the
	// timeout error can still be written.
	writeGrace = 10 * time.Second
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration
	// RequestTimeout bounds one generation request end to end.
	RequestTimeout time.Duration

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIOrg        string
	OpenAIImageModel string
	OpenAIEditModel  string
	OpenAIChatModel  string

	ProviderTimeout    time.Duration
	ProviderMaxRetries int
	ProviderRPS        float64
	ProviderBurst      int

	StyleProfilesPath string
	StyleLookup       styles.LookupMode
	RefinementPolicy  generation.RefinementPolicy

	RateLimitMax    int
	RateLimitWindow time.Duration
	RedisURL        string

	UploadMaxBytes   int64
	JSONBodyMaxBytes int64
	UploadTempDir    string

	PublicDir          string
	CORSAllowedOrigins []string
	// TrustedProxyHops is the number of reverse proxies in front of the
	// service. Zero ignores X-Forwarded-For.
	TrustedProxyHops int
}

// Development reports whether error details may be echoed to clients.
func (c *Config) Development() bool {
	return c.AppEnv == EnvDevelopment
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             strings.ToLower(getEnv("APP_ENV", EnvProduction)),
		Port:               getEnv("PORT", "3001"),
		HTTPReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 120),
		HTTPIdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT_SECONDS", 15),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT_SECONDS", 110),
		OpenAIAPIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		OpenAIImageModel:   getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		OpenAIEditModel:    getEnv("OPENAI_EDIT_MODEL", "dall-e-2"),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT_SECONDS", 30),
		ProviderMaxRetries: getEnvInt("PROVIDER_MAX_RETRIES", 2),
		ProviderRPS:        getEnvFloat("PROVIDER_RPS", 0),
		ProviderBurst:      getEnvInt("PROVIDER_BURST", 1),
		StyleProfilesPath:  getEnv("STYLE_PROFILES_PATH", "styleProfiles.json"),
		StyleLookup:        styles.ParseLookupMode(os.Getenv("STYLE_LOOKUP")),
		RefinementPolicy:   generation.ParseRefinementPolicy(os.Getenv("REFINEMENT_FAILURE_POLICY")),
		RateLimitMax:       getEnvInt("RATE_LIMIT_MAX", 20),
		RateLimitWindow:    getEnvDuration("RATE_LIMIT_WINDOW_SECONDS", 3600),
		RedisURL:           os.Getenv("REDIS_URL"),
		UploadMaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", int(upload.DefaultMaxBytes))),
		JSONBodyMaxBytes:   int64(getEnvInt("JSON_BODY_MAX_BYTES", 5<<20)),
		UploadTempDir:      os.Getenv("UPLOAD_TEMP_DIR"),
		PublicDir:          getEnv("PUBLIC_DIR", "public"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		TrustedProxyHops:   getEnvInt("TRUSTED_PROXY_HOPS", 1),
	}
	if !getEnvBool("TRUST_PROXY", true) {
		cfg.TrustedProxyHops = 0
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}
	if cfg.UploadMaxBytes <= 0 || cfg.JSONBodyMaxBytes <= 0 {
		return nil, fmt.Errorf("UPLOAD_MAX_BYTES and JSON_BODY_MAX_BYTES must be positive")
	}
	if cfg.ProviderMaxRetries < 0 {
		return nil, fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative")
	}
	if cfg.TrustedProxyHops < 0 {
		return nil, fmt.Errorf("TRUSTED_PROXY_HOPS must not be negative")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if cfg.HTTPWriteTimeout < cfg.RequestTimeout+writeGrace {
		cfg.HTTPWriteTimeout = cfg.RequestTimeout + writeGrace
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a whole number of seconds.
func getEnvDuration(key string, fallbackSeconds int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallbackSeconds))
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
