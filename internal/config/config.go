// Package config provides configuration management for Harmon.
// It loads settings from environment variables with the HARMON_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration settings for the Harmon service.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Resolver   ResolverConfig
	Embedding  EmbeddingConfig
	Enrichment EnrichmentConfig
	Security   SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7171)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for SQLite (default: ./data)
	PostgresDSN   string // Postgres connection string, required when engine is postgres
	WatchFile     bool   // Watch the SQLite store file and reload on change (default: false)
}

// ResolverConfig contains resolution tier thresholds.
type ResolverConfig struct {
	Namespaces         []string // Namespaces to serve (default: ["default"])
	FuzzyConfident     float64  // Fuzzy score at or above which a match resolves (default: 0.85)
	SemanticConfident  float64  // Semantic similarity at or above which a match resolves (default: 0.95)
	SuggestionFloor    float64  // Minimum score for a suggestion to surface (default: 0.30)
	SuggestionTopK     int      // Maximum suggestions per unresolved mention (default: 3)
	ReloadDebounceSecs int      // Debounce window for watcher-triggered reloads (default: 2)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Enabled     bool   // Enable the semantic tier (default: false)
	OllamaURL   string // Ollama API URL (default: http://localhost:11434)
	OllamaModel string // Ollama model name for embeddings (default: nomic-embed-text)
	RatePerSec  int    // Max embedding requests per second (default: 10)
}

// EnrichmentConfig contains enrichment worker configuration.
type EnrichmentConfig struct {
	Enabled          bool    // Enable the background enrichment worker (default: true)
	IntervalSecs     int     // Seconds between queue sweeps (default: 60)
	MinOccurrences   int     // Minimum occurrences before an item is considered (default: 2)
	AutoApproveScore float64 // Score at or above which an alias is promoted automatically (default: 0.92)
	BatchSize        int     // Items processed per sweep (default: 25)
}

// SecurityConfig contains authentication and rate-limit settings.
type SecurityConfig struct {
	APIToken   string // Bearer token for admin endpoints; empty disables auth
	RatePerSec int    // Max requests per second per server (default: 50)
	RateBurst  int    // Burst allowance for the rate limiter (default: 100)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the HARMON_ prefix.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("HARMON_PORT", 7171),
			Host: getEnv("HARMON_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("HARMON_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("HARMON_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("HARMON_POSTGRES_DSN", ""),
			WatchFile:     getEnvBool("HARMON_WATCH_STORE_FILE", false),
		},
		Resolver: ResolverConfig{
			Namespaces:         getEnvList("HARMON_NAMESPACES", []string{"default"}),
			FuzzyConfident:     getEnvFloat("HARMON_FUZZY_CONFIDENT", 0.85),
			SemanticConfident:  getEnvFloat("HARMON_SEMANTIC_CONFIDENT", 0.95),
			SuggestionFloor:    getEnvFloat("HARMON_SUGGESTION_FLOOR", 0.30),
			SuggestionTopK:     getEnvInt("HARMON_SUGGESTION_TOPK", 3),
			ReloadDebounceSecs: getEnvInt("HARMON_RELOAD_DEBOUNCE_SECS", 2),
		},
		Embedding: EmbeddingConfig{
			Enabled:     getEnvBool("HARMON_EMBEDDING_ENABLED", false),
			OllamaURL:   getEnv("HARMON_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel: getEnv("HARMON_EMBEDDING_MODEL", "nomic-embed-text"),
			RatePerSec:  getEnvInt("HARMON_EMBEDDING_RATE_PER_SEC", 10),
		},
		Enrichment: EnrichmentConfig{
			Enabled:          getEnvBool("HARMON_ENRICHMENT_ENABLED", true),
			IntervalSecs:     getEnvInt("HARMON_ENRICHMENT_INTERVAL_SECS", 60),
			MinOccurrences:   getEnvInt("HARMON_ENRICHMENT_MIN_OCCURRENCES", 2),
			AutoApproveScore: getEnvFloat("HARMON_ENRICHMENT_AUTO_APPROVE", 0.92),
			BatchSize:        getEnvInt("HARMON_ENRICHMENT_BATCH_SIZE", 25),
		},
		Security: SecurityConfig{
			APIToken:   getEnv("HARMON_API_TOKEN", ""),
			RatePerSec: getEnvInt("HARMON_RATE_PER_SEC", 50),
			RateBurst:  getEnvInt("HARMON_RATE_BURST", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.StorageEngine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: HARMON_POSTGRES_DSN is required when storage engine is postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}
	if len(c.Resolver.Namespaces) == 0 {
		return fmt.Errorf("config: at least one namespace is required")
	}
	if c.Resolver.SuggestionFloor > c.Resolver.FuzzyConfident {
		return fmt.Errorf("config: suggestion floor %v exceeds fuzzy confidence threshold %v",
			c.Resolver.SuggestionFloor, c.Resolver.FuzzyConfident)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ReloadDebounce returns the watcher debounce window as a duration.
func (c *Config) ReloadDebounce() time.Duration {
	return time.Duration(c.Resolver.ReloadDebounceSecs) * time.Second
}

// EnrichmentInterval returns the worker sweep interval as a duration.
func (c *Config) EnrichmentInterval() time.Duration {
	return time.Duration(c.Enrichment.IntervalSecs) * time.Second
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated list environment variable or
// returns a default value. Blank elements are dropped.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
