// Package config provides configuration loading for assistd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables, with hardcoded defaults for anything missing.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/warhack811/ai/internal/backend"
	"github.com/warhack811/ai/internal/cache"
	"github.com/warhack811/ai/internal/history"
	"github.com/warhack811/ai/internal/knowledge"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/logging"
	"github.com/warhack811/ai/internal/pipeline"
	"github.com/warhack811/ai/internal/quality"
	"github.com/warhack811/ai/internal/redact"
	"github.com/warhack811/ai/internal/retrieval"
	"github.com/warhack811/ai/internal/safety"
	"github.com/warhack811/ai/internal/websearch"
)

// Config holds the complete assistd configuration.
type Config struct {
	Server     ServerConfig          `koanf:"server"`
	Logging    logging.Config        `koanf:"logging"`
	Backends   []backend.ModelConfig `koanf:"backends"`
	Generation pipeline.Config       `koanf:"generation"`
	Learning   learning.Config       `koanf:"learning"`
	History    history.Config        `koanf:"history"`
	Retrieval  RetrievalConfig       `koanf:"retrieval"`
	Cache      cache.Config          `koanf:"cache"`
	Safety     safety.Config         `koanf:"safety"`
	Redact     redact.Config         `koanf:"redact"`
	Quality    quality.Config        `koanf:"quality"`
	RateLimit  RateLimitConfig       `koanf:"ratelimit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RetrievalConfig groups the context assembly settings with its two
// source backends.
type RetrievalConfig struct {
	Assembler retrieval.Config `koanf:"assembler"`
	Knowledge knowledge.Config `koanf:"knowledge"`
	WebSearch websearch.Config `koanf:"websearch"`
}

// RateLimitConfig holds per-client request limiting.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = defaultBackends()
	}
	for i := range cfg.Backends {
		if cfg.Backends[i].Temperature == 0 {
			cfg.Backends[i].Temperature = 0.7
		}
		if cfg.Backends[i].MaxTokens == 0 {
			cfg.Backends[i].MaxTokens = 1024
		}
		if cfg.Backends[i].Timeout == 0 {
			cfg.Backends[i].Timeout = 60 * time.Second
		}
	}

	def := pipeline.DefaultConfig()
	if cfg.Generation.MaxAttempts == 0 {
		cfg.Generation.MaxAttempts = def.MaxAttempts
	}
	if cfg.Generation.RetryBackoff == 0 {
		cfg.Generation.RetryBackoff = def.RetryBackoff
	}
	if cfg.Generation.LearnQueueSize == 0 {
		cfg.Generation.LearnQueueSize = def.LearnQueueSize
	}
	if cfg.Generation.HistoryChars == 0 {
		cfg.Generation.HistoryChars = def.HistoryChars
	}
	if cfg.Generation.ProfileChars == 0 {
		cfg.Generation.ProfileChars = def.ProfileChars
	}
	if cfg.Generation.CacheTTL == 0 {
		cfg.Generation.CacheTTL = def.CacheTTL
	}

	if cfg.Learning.Path == "" {
		cfg.Learning.Path = "data/learning.db"
	}
	if cfg.Learning.WindowDays == 0 {
		cfg.Learning.WindowDays = 30
	}
	if cfg.Learning.RecomputeEvery == 0 {
		cfg.Learning.RecomputeEvery = 10
	}
	if cfg.Learning.SimilarityThreshold == 0 {
		cfg.Learning.SimilarityThreshold = 0.7
	}

	if cfg.History.Path == "" {
		cfg.History.Path = "data/history.db"
	}
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = 6
	}

	if cfg.Retrieval.Assembler.MaxSources == 0 {
		cfg.Retrieval.Assembler.MaxSources = 3
	}
	if cfg.Retrieval.Assembler.CharBudget == 0 {
		cfg.Retrieval.Assembler.CharBudget = 2000
	}
	if cfg.Retrieval.Knowledge.SnippetLength == 0 {
		cfg.Retrieval.Knowledge.SnippetLength = 400
	}
	if cfg.Retrieval.WebSearch.Language == "" {
		cfg.Retrieval.WebSearch.Language = "tr"
	}
	if cfg.Retrieval.WebSearch.Timeout == 0 {
		cfg.Retrieval.WebSearch.Timeout = 15 * time.Second
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 10 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}

	if cfg.Quality.ValidatorWeight == 0 && cfg.Quality.CoherenceWeight == 0 {
		cfg.Quality = quality.DefaultConfig()
	}

	if cfg.RateLimit.RPS == 0 {
		cfg.RateLimit.RPS = 2
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}
}

// defaultBackends is the out-of-the-box model pool: three tiers against
// a local OpenAI-compatible server.
func defaultBackends() []backend.ModelConfig {
	return []backend.ModelConfig{
		{
			Key:     "fast",
			Model:   "qwen2.5:3b-instruct",
			BaseURL: "http://localhost:11434/v1",
			Tier:    "light",
		},
		{
			Key:     "balanced",
			Model:   "qwen2.5:7b-instruct",
			BaseURL: "http://localhost:11434/v1",
			Tier:    "mid",
		},
		{
			Key:     "deep",
			Model:   "qwen2.5:14b-instruct",
			BaseURL: "http://localhost:11434/v1",
			Tier:    "reasoning",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if len(c.Backends) == 0 {
		return errors.New("at least one backend must be configured")
	}
	seen := make(map[string]bool, len(c.Backends))
	for i := range c.Backends {
		if err := c.Backends[i].Validate(); err != nil {
			return fmt.Errorf("backend %d: %w", i, err)
		}
		if seen[c.Backends[i].Key] {
			return fmt.Errorf("duplicate backend key %q", c.Backends[i].Key)
		}
		seen[c.Backends[i].Key] = true
	}

	if c.Quality.AcceptThreshold < 0 || c.Quality.AcceptThreshold > 1 {
		return fmt.Errorf("accept threshold must be in [0,1], got %v", c.Quality.AcceptThreshold)
	}

	if c.Retrieval.WebSearch.Enabled && len(c.Retrieval.WebSearch.URLs) == 0 {
		return errors.New("web search enabled but no instance urls configured")
	}

	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return errors.New("rate limit rps must be positive when enabled")
	}

	return nil
}
