// Package router selects a generation backend for each request by
// combining a forced override, learned feedback insights, and a static
// complexity-to-tier mapping.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/backend"
	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/complexity"
	"github.com/warhack811/ai/internal/learning"
)

// learnedConfidenceThreshold gates the learned override: below it the
// static mapping wins.
const learnedConfidenceThreshold = 0.7

// Source records which path produced a routing decision.
type Source string

const (
	SourceForced  Source = "forced"
	SourceLearned Source = "learned"
	SourceStatic  Source = "static"
)

// Decision is the outcome of routing one request.
type Decision struct {
	ModelKey   string  `json:"model_key"`
	Complexity int     `json:"complexity"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning"`
}

// Recommender supplies learned backend recommendations.
type Recommender interface {
	Recommend(ctx context.Context, intent string, complexity int, availableModels []string) (learning.Recommendation, error)
}

// Router picks a backend for each request.
type Router struct {
	pool        *backend.Pool
	recommender Recommender
	logger      *zap.Logger
}

// NewRouter builds a router over a non-empty pool. recommender may be
// nil to disable the learned path.
func NewRouter(pool *backend.Pool, recommender Recommender, logger *zap.Logger) (*Router, error) {
	if pool == nil {
		return nil, fmt.Errorf("router requires a backend pool")
	}
	if len(pool.Keys()) == 0 {
		return nil, backend.ErrEmptyPool
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		pool:        pool,
		recommender: recommender,
		logger:      logger,
	}, nil
}

// Select routes one request.
//
// A valid forced key wins verbatim. An invalid forced key is logged and
// routing continues automatically. A learned recommendation wins when
// its confidence clears the threshold and the key is in the pool.
// Otherwise the complexity tier decides, degrading to cheaper tiers
// when the mapped tier has no backend.
func (r *Router) Select(ctx context.Context, query string, mode classify.Mode, intent classify.Intent, forcedKey string) (Decision, error) {
	score := complexity.Score(query, mode, intent)

	if forcedKey != "" {
		if r.pool.Has(forcedKey) {
			return Decision{
				ModelKey:   forcedKey,
				Complexity: score,
				Source:     SourceForced,
				Reasoning:  "client forced backend",
			}, nil
		}
		r.logger.Warn("forced backend not in pool, routing automatically",
			zap.String("forced_key", forcedKey))
	}

	if r.recommender != nil {
		rec, err := r.recommender.Recommend(ctx, string(intent), score, r.pool.Keys())
		if err != nil {
			r.logger.Warn("learned recommendation failed", zap.Error(err))
		} else if rec.ModelKey != "" && rec.Confidence > learnedConfidenceThreshold && r.pool.Has(rec.ModelKey) {
			return Decision{
				ModelKey:   rec.ModelKey,
				Complexity: score,
				Source:     SourceLearned,
				Confidence: rec.Confidence,
				Reasoning:  fmt.Sprintf("learned preference for intent %s", intent),
			}, nil
		}
	}

	tier := complexity.TierFor(score)
	key, servedTier := r.staticPick(tier)

	reasoning := fmt.Sprintf("complexity %d maps to %s tier", score, tier)
	if servedTier != tier {
		reasoning = fmt.Sprintf("complexity %d maps to %s tier, degraded to %s", score, tier, servedTier)
	}

	return Decision{
		ModelKey:   key,
		Complexity: score,
		Source:     SourceStatic,
		Reasoning:  reasoning,
	}, nil
}

// staticPick finds the first backend in the tier, walking down to
// cheaper tiers when the tier is empty. A pool with no backend in any
// tier at or below the target falls back to the first configured key.
func (r *Router) staticPick(tier complexity.Tier) (string, complexity.Tier) {
	current := tier
	for {
		if keys := r.pool.KeysForTier(current); len(keys) > 0 {
			return keys[0], current
		}
		next := complexity.CheaperTier(current)
		if next == current {
			break
		}
		current = next
	}
	return r.pool.Keys()[0], tier
}
