// Package retrieval assembles augmented context for generation: scored
// snippets from the local knowledge base merged with optional web
// results, rendered into a character-budgeted text block.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/knowledge"
	"github.com/warhack811/ai/internal/websearch"
)

// Config holds context assembly configuration.
type Config struct {
	// MaxSources caps the total number of merged sources.
	MaxSources int `koanf:"max_sources"`

	// CharBudget caps the rendered context text. Blocks are whole:
	// rendering stops before the block that would exceed the budget.
	CharBudget int `koanf:"char_budget"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		MaxSources: 3,
		CharBudget: 2000,
	}
}

// SourceType distinguishes where a source came from.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceWeb   SourceType = "web"
)

// Source is one retrieved snippet, exposed to clients alongside the
// answer.
type Source struct {
	Type    SourceType `json:"type"`
	Title   string     `json:"title"`
	URL     string     `json:"url,omitempty"`
	Snippet string     `json:"snippet"`
	Score   float64    `json:"score"`
}

// LocalSearcher searches the local knowledge base.
type LocalSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]knowledge.Result, error)
}

// WebSearcher searches the web.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error)
}

// Assembler merges local and web retrieval into prompt context.
type Assembler struct {
	cfg    Config
	local  LocalSearcher
	web    WebSearcher
	logger *zap.Logger
}

// NewAssembler builds an assembler. local and web may be nil, in which
// case that source is simply absent.
func NewAssembler(cfg Config, local LocalSearcher, web WebSearcher, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultConfig().MaxSources
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultConfig().CharBudget
	}
	return &Assembler{
		cfg:    cfg,
		local:  local,
		web:    web,
		logger: logger,
	}
}

// Build retrieves and renders context for a query. Retrieval gates may
// skip it entirely. Both fetches run concurrently and fail soft: a
// broken source contributes nothing rather than failing the request.
// No sources means ("", nil), never an error.
func (a *Assembler) Build(ctx context.Context, query string, useWeb bool, intent classify.Intent, mode classify.Mode) (string, []Source, error) {
	if !IncludeRetrieval(query, intent, mode) {
		return "", nil, nil
	}

	var localResults []knowledge.Result
	var webResults []websearch.Result

	// Fetch more candidates than we keep so the reranker has room.
	candidateLimit := a.cfg.MaxSources * 2

	g, gctx := errgroup.WithContext(ctx)

	if a.local != nil {
		g.Go(func() error {
			res, err := a.local.Search(gctx, query, candidateLimit)
			if err != nil {
				a.logger.Warn("local retrieval failed", zap.Error(err))
				return nil
			}
			localResults = res
			return nil
		})
	}

	if a.web != nil && useWeb {
		g.Go(func() error {
			res, err := a.web.Search(gctx, query, candidateLimit)
			if err != nil {
				a.logger.Warn("web retrieval failed", zap.Error(err))
				return nil
			}
			webResults = res
			return nil
		})
	}

	// workers swallow their own errors
	_ = g.Wait()

	merged := mergeSources(localResults, webResults)
	sources := rerankSources(query, merged, a.cfg.MaxSources)
	if len(sources) == 0 {
		return "", nil, nil
	}

	return renderContext(sources, a.cfg.CharBudget), sources, nil
}

// mergeSources combines both result sets, local before web, leaving
// ordering and truncation to the reranker.
func mergeSources(local []knowledge.Result, web []websearch.Result) []Source {
	merged := make([]Source, 0, len(local)+len(web))
	for _, r := range local {
		merged = append(merged, Source{
			Type:    SourceLocal,
			Title:   r.Title,
			Snippet: r.Snippet,
			Score:   r.Score,
		})
	}
	for _, r := range web {
		merged = append(merged, Source{
			Type:    SourceWeb,
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}

	return merged
}

// renderContext renders sources as header+snippet blocks under the
// character budget. A block that would cross the budget is dropped
// whole, along with everything after it.
func renderContext(sources []Source, budget int) string {
	var b strings.Builder
	for i, s := range sources {
		block := renderBlock(i+1, s)
		if b.Len() > 0 {
			block = "\n\n" + block
		}
		if b.Len()+len(block) > budget {
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

func renderBlock(n int, s Source) string {
	if s.Type == SourceWeb && s.URL != "" {
		return fmt.Sprintf("(%d) %s - %s\n%s", n, s.Title, s.URL, s.Snippet)
	}
	return fmt.Sprintf("(%d) %s\n%s", n, s.Title, s.Snippet)
}
