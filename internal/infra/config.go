package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string

	// Remote genmoji service.
	BaseURL  string
	APIToken string
	Locale   string

	// Gateway timeouts. Generation polls tolerate a longer ceiling than
	// catalog fetches.
	CatalogTimeout  time.Duration
	GenerateTimeout time.Duration

	// Job controller.
	PollInterval time.Duration

	// Gallery.
	PageSize int
	FacetTTL time.Duration

	// Devserver (mockapi).
	MockPort    string
	GeoIPDBPath string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		BaseURL:         getEnv("GENMOJI_BASE_URL", "http://localhost:8080"),
		APIToken:        os.Getenv("GENMOJI_API_TOKEN"),
		Locale:          getEnv("GENMOJI_LOCALE", "en"),
		CatalogTimeout:  time.Second * time.Duration(getEnvInt("GENMOJI_CATALOG_TIMEOUT_SECONDS", 10)),
		GenerateTimeout: time.Second * time.Duration(getEnvInt("GENMOJI_GENERATE_TIMEOUT_SECONDS", 30)),
		PollInterval:    time.Millisecond * time.Duration(getEnvInt("GENMOJI_POLL_INTERVAL_MS", 2000)),
		PageSize:        getEnvInt("GENMOJI_PAGE_SIZE", 24),
		FacetTTL:        time.Second * time.Duration(getEnvInt("GENMOJI_FACET_TTL_SECONDS", 300)),
		MockPort:        getEnv("MOCKAPI_PORT", "8080"),
		GeoIPDBPath:     os.Getenv("GEOIP_DB_PATH"),
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("GENMOJI_BASE_URL is invalid: %w", err)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("GENMOJI_PAGE_SIZE must be positive")
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
