// Package backend manages the pool of generation backends. Each
// backend is an OpenAI-compatible chat endpoint addressed by a short
// pool key and grouped into a capability tier.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/complexity"
)

var (
	// ErrEmptyPool means no backends were configured.
	ErrEmptyPool = errors.New("backend pool cannot be empty")

	// ErrUnknownBackend means the requested pool key does not exist.
	ErrUnknownBackend = errors.New("unknown backend key")
)

// ModelConfig describes one backend in the pool.
type ModelConfig struct {
	// Key is the pool identifier clients and the router use.
	Key string `koanf:"key"`

	// Model is the upstream model name sent on the wire.
	Model string `koanf:"model"`

	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`

	// Tier is light, mid, heavy or reasoning.
	Tier string `koanf:"tier"`

	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Validate checks the per-backend required fields.
func (m ModelConfig) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("backend key cannot be empty")
	}
	if m.Model == "" {
		return fmt.Errorf("backend %q: model cannot be empty", m.Key)
	}
	if m.BaseURL == "" {
		return fmt.Errorf("backend %q: base_url cannot be empty", m.Key)
	}
	switch complexity.Tier(m.Tier) {
	case complexity.TierLight, complexity.TierMid, complexity.TierHeavy, complexity.TierReasoning:
	default:
		return fmt.Errorf("backend %q: invalid tier %q", m.Key, m.Tier)
	}
	return nil
}

// Generator produces one completion for a prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Backend is one pool entry: its config plus a live client.
type Backend struct {
	Config ModelConfig
	client llms.Model
}

// Generate runs one completion against the backend with its configured
// hard timeout.
func (b *Backend) Generate(ctx context.Context, system, prompt string) (string, error) {
	timeout := b.Config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := []llms.MessageContent{}
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	opts := []llms.CallOption{
		llms.WithTemperature(b.Config.Temperature),
	}
	if b.Config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(b.Config.MaxTokens))
	}

	resp, err := b.client.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("backend %s: %w", b.Config.Key, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("backend %s: empty completion", b.Config.Key)
	}
	return resp.Choices[0].Content, nil
}

// Pool holds all configured backends keyed by pool key.
type Pool struct {
	backends map[string]*Backend
	byTier   map[complexity.Tier][]string
	keys     []string
	logger   *zap.Logger
}

// NewPool builds clients for every configured backend. An empty config
// list is a fatal configuration error.
func NewPool(configs []ModelConfig, logger *zap.Logger) (*Pool, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		backends: make(map[string]*Backend, len(configs)),
		byTier:   make(map[complexity.Tier][]string),
		logger:   logger,
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, exists := p.backends[cfg.Key]; exists {
			return nil, fmt.Errorf("duplicate backend key %q", cfg.Key)
		}

		apiKey := cfg.APIKey
		if apiKey == "" {
			// langchaingo requires a token even for keyless local servers
			apiKey = "placeholder"
		}

		client, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
			openai.WithToken(apiKey),
		)
		if err != nil {
			return nil, fmt.Errorf("creating client for backend %q: %w", cfg.Key, err)
		}

		tier := complexity.Tier(cfg.Tier)
		p.backends[cfg.Key] = &Backend{Config: cfg, client: client}
		p.byTier[tier] = append(p.byTier[tier], cfg.Key)
		p.keys = append(p.keys, cfg.Key)
	}

	return p, nil
}

// Get returns the backend for a pool key.
func (p *Pool) Get(key string) (*Backend, error) {
	b, ok := p.backends[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, key)
	}
	return b, nil
}

// Generator returns the backend for a pool key behind the Generator
// interface.
func (p *Pool) Generator(key string) (Generator, error) {
	return p.Get(key)
}

// Has reports whether a pool key exists.
func (p *Pool) Has(key string) bool {
	_, ok := p.backends[key]
	return ok
}

// Keys returns every pool key in configuration order.
func (p *Pool) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// KeysForTier returns the pool keys in a tier, in configuration order.
func (p *Pool) KeysForTier(tier complexity.Tier) []string {
	keys := p.byTier[tier]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
