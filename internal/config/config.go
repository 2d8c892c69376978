// Package config loads process-level defaults for an embedding caller that
// wires up a runtime (tier providers, embedding provider, storage backend,
// observer pricing) from a TOML file and environment overrides, mirroring
// the functional-options defaults the root package applies to a single
// RunContext.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the process-wide configuration for an embedding application:
// which providers back each tier, which store backend to open, and whether
// to export observer telemetry.
type Config struct {
	Tiers     TierConfig      `toml:"tiers"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Database  DatabaseConfig  `toml:"database"`
	Observer  ObserverConfig  `toml:"observer"`
}

// TierConfig names the provider and model backing each escalation tier.
type TierConfig struct {
	Small  ProviderConfig `toml:"small"`
	Medium ProviderConfig `toml:"medium"`
	Large  ProviderConfig `toml:"large"`
}

// ProviderConfig names a concrete LLM provider and model for a tier. The
// runtime itself only depends on the abstract Provider interface; resolving
// this into a live Provider is left to the embedding application.
type ProviderConfig struct {
	Name   string `toml:"name"`
	Model  string `toml:"model"`
	APIKey string `toml:"api_key"`
}

// EmbeddingConfig configures the embedding provider used for archive recall.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// DatabaseConfig selects and configures a store backend. Backend selects
// among "sqlite", "postgres", and "libsql"; the remaining fields configure
// whichever backend is selected.
type DatabaseConfig struct {
	Backend    string `toml:"backend"`
	Path       string `toml:"path"`
	DSN        string `toml:"dsn"`
	TursoURL   string `toml:"turso_url"`
	TursoToken string `toml:"turso_token"`
}

// ObserverConfig controls OpenTelemetry export and per-model cost pricing.
type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

// ObserverPricing overrides or extends observer.DefaultPricing for one model.
type ObserverPricing struct {
	InputPerMillion  float64 `toml:"input_per_million"`
	OutputPerMillion float64 `toml:"output_per_million"`
}

// Default returns a Config with sensible defaults: an in-process sqlite
// store and every tier pointed at the same provider/model, escalation
// handled by choosing distinct models per tier in the TOML file.
func Default() Config {
	return Config{
		Tiers: TierConfig{
			Small:  ProviderConfig{Name: "anthropic", Model: "claude-haiku-3-5"},
			Medium: ProviderConfig{Name: "anthropic", Model: "claude-sonnet-4-5"},
			Large:  ProviderConfig{Name: "anthropic", Model: "claude-opus-4"},
		},
		Embedding: EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
		Database:  DatabaseConfig{Backend: "sqlite", Path: "oasis.db"},
	}
}

// Load reads config: defaults -> TOML file -> environment variables, with
// environment variables taking precedence. path == "" uses "oasis.toml" in
// the working directory; a missing file is not an error, Default() is kept.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "oasis.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("OASIS_SMALL_API_KEY"); v != "" {
		cfg.Tiers.Small.APIKey = v
	}
	if v := os.Getenv("OASIS_MEDIUM_API_KEY"); v != "" {
		cfg.Tiers.Medium.APIKey = v
	}
	if v := os.Getenv("OASIS_LARGE_API_KEY"); v != "" {
		cfg.Tiers.Large.APIKey = v
	}
	if v := os.Getenv("OASIS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("OASIS_TURSO_URL"); v != "" {
		cfg.Database.TursoURL = v
	}
	if v := os.Getenv("OASIS_TURSO_TOKEN"); v != "" {
		cfg.Database.TursoToken = v
	}
	if v := os.Getenv("OASIS_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if os.Getenv("OASIS_OBSERVER_ENABLED") == "true" || os.Getenv("OASIS_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Medium/Large fall back to Small's key when unset, same provider account
	// used across tiers unless the TOML file says otherwise.
	if cfg.Tiers.Medium.APIKey == "" {
		cfg.Tiers.Medium.APIKey = cfg.Tiers.Small.APIKey
	}
	if cfg.Tiers.Large.APIKey == "" {
		cfg.Tiers.Large.APIKey = cfg.Tiers.Small.APIKey
	}

	return cfg
}
