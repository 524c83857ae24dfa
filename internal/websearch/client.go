// Package websearch queries one or more SearxNG instances for web
// results. Every failure degrades to an empty result set so callers
// never have to special-case a broken search backend.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

// blockedDomains are skipped in results: social media and spam-prone
// hosts carry no answerable content.
var blockedDomains = []string{
	"facebook.com",
	"twitter.com",
	"instagram.com",
	"youtube.com",
	"tiktok.com",
	"pinterest.com",
}

// Config holds web search configuration.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// URLs lists SearxNG base URLs, tried in order.
	URLs []string `koanf:"urls"`

	// Language is the preferred result language.
	Language string `koanf:"language"`

	Timeout time.Duration `koanf:"timeout"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		Enabled:  false,
		Language: "tr",
		Timeout:  15 * time.Second,
	}
}

// Result is one web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Client queries SearxNG instances.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a web search client. A nil logger is replaced with a
// no-op one.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Language == "" {
		cfg.Language = DefaultConfig().Language
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// searxResponse is the subset of the SearxNG JSON payload we read.
type searxResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns up to maxResults hits for query. Disabled search, no
// configured instances, and any transport or decode error all return
// (nil, nil).
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if !c.cfg.Enabled || len(c.cfg.URLs) == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	var results []Result
	for _, base := range c.cfg.URLs {
		hits, err := c.searchInstance(ctx, base, query)
		if err != nil {
			c.logger.Warn("searxng instance failed",
				zap.String("instance", base), zap.Error(err))
			continue
		}
		for _, hit := range hits {
			results = append(results, hit)
			if len(results) >= maxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

func (c *Client) searchInstance(ctx context.Context, base, query string) ([]Result, error) {
	endpoint := strings.TrimRight(base, "/") + "/search"

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", c.cfg.Language)
	params.Set("safesearch", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying searxng: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng returned status %d", resp.StatusCode)
	}

	var payload searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding searxng response: %w", err)
	}

	var out []Result
	for _, item := range payload.Results {
		if item.URL == "" || item.Content == "" {
			continue
		}
		if isBlocked(item.URL) {
			continue
		}

		title := item.Title
		if title == "" {
			title = item.URL
		}
		if len(title) > 200 {
			title = title[:200]
		}

		content := strings.TrimSpace(item.Content)
		if len(content) > 1000 {
			content = content[:1000] + " ..."
		}

		score := item.Score
		if score <= 0 {
			score = 1.0
		}

		out = append(out, Result{
			Title:   title,
			URL:     item.URL,
			Content: content,
			Score:   score,
		})
	}
	return out, nil
}

func isBlocked(rawURL string) bool {
	for _, domain := range blockedDomains {
		if strings.Contains(rawURL, domain) {
			return true
		}
	}
	return false
}
