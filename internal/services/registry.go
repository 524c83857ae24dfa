package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/backend"
	"github.com/warhack811/ai/internal/cache"
	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/config"
	"github.com/warhack811/ai/internal/history"
	"github.com/warhack811/ai/internal/httpapi"
	"github.com/warhack811/ai/internal/knowledge"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/metrics"
	"github.com/warhack811/ai/internal/pipeline"
	"github.com/warhack811/ai/internal/prompt"
	"github.com/warhack811/ai/internal/quality"
	"github.com/warhack811/ai/internal/redact"
	"github.com/warhack811/ai/internal/retrieval"
	"github.com/warhack811/ai/internal/router"
	"github.com/warhack811/ai/internal/safety"
	"github.com/warhack811/ai/internal/websearch"
)

// Registry provides access to all assistd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Pipeline() *pipeline.Pipeline
	Learning() *learning.Store
	History() *history.Store
	Knowledge() *knowledge.Index
	Backends() *backend.Pool
	Cache() *cache.Cache

	// Close releases the stores. The pipeline must be stopped first.
	Close() error
}

// registry is the concrete implementation of Registry.
type registry struct {
	pipeline  *pipeline.Pipeline
	learning  *learning.Store
	history   *history.Store
	knowledge *knowledge.Index
	backends  *backend.Pool
	cache     *cache.Cache
}

// Build wires the full service graph from configuration.
func Build(cfg *config.Config, logger *zap.Logger) (Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := metrics.NewMetrics()

	pool, err := backend.NewPool(cfg.Backends, logger)
	if err != nil {
		return nil, fmt.Errorf("building backend pool: %w", err)
	}

	learningStore, err := learning.NewStore(cfg.Learning, logger)
	if err != nil {
		return nil, fmt.Errorf("opening learning store: %w", err)
	}

	historyStore, err := history.NewStore(cfg.History, logger)
	if err != nil {
		learningStore.Close()
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	index, err := knowledge.NewIndex(cfg.Retrieval.Knowledge, logger)
	if err != nil {
		learningStore.Close()
		historyStore.Close()
		return nil, fmt.Errorf("building knowledge index: %w", err)
	}

	var web retrieval.WebSearcher
	if cfg.Retrieval.WebSearch.Enabled {
		web = websearch.NewClient(cfg.Retrieval.WebSearch, logger)
	}
	assembler := retrieval.NewAssembler(cfg.Retrieval.Assembler, index, web, logger)

	sel, err := router.NewRouter(pool, learningStore, logger)
	if err != nil {
		learningStore.Close()
		historyStore.Close()
		index.Close()
		return nil, fmt.Errorf("building router: %w", err)
	}

	memo := cache.New(cfg.Cache)

	redactor, err := redact.New(cfg.Redact)
	if err != nil {
		learningStore.Close()
		historyStore.Close()
		index.Close()
		return nil, fmt.Errorf("building redactor: %w", err)
	}

	p, err := pipeline.New(cfg.Generation, pipeline.Deps{
		Intents:  classify.NewKeywordIntentClassifier(),
		Emotions: classify.NewKeywordEmotionClassifier(),
		Builder:  assembler,
		Selector: sel,
		Backends: pool,
		Renderer: prompt.NewConsultantRenderer(),
		Quality:  quality.NewEvaluator(cfg.Quality),
		Safety:   safety.NewKeywordFilter(cfg.Safety),
		Store:    historyStore,
		Redactor: redactor,
		Recorder: learningStore,
		Signals:  learning.NewSignalClassifier(cfg.Learning.SimilarityThreshold),
		Memo:     memo,
		Metrics:  m,
		Logger:   logger,
	})
	if err != nil {
		learningStore.Close()
		historyStore.Close()
		index.Close()
		return nil, fmt.Errorf("building pipeline: %w", err)
	}

	return &registry{
		pipeline:  p,
		learning:  learningStore,
		history:   historyStore,
		knowledge: index,
		backends:  pool,
		cache:     memo,
	}, nil
}

// NewHTTPServer builds the API server on top of the registry.
func NewHTTPServer(reg Registry, cfg *config.Config, logger *zap.Logger) (*httpapi.Server, error) {
	return httpapi.NewServer(reg.Pipeline(), reg.Learning(), logger, &httpapi.Config{
		Host:             "0.0.0.0",
		Port:             cfg.Server.Port,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimitRPS:     cfg.RateLimit.RPS,
		RateLimitBurst:   cfg.RateLimit.Burst,
	})
}

func (r *registry) Pipeline() *pipeline.Pipeline { return r.pipeline }
func (r *registry) Learning() *learning.Store    { return r.learning }
func (r *registry) History() *history.Store      { return r.history }
func (r *registry) Knowledge() *knowledge.Index  { return r.knowledge }
func (r *registry) Backends() *backend.Pool      { return r.backends }
func (r *registry) Cache() *cache.Cache          { return r.cache }

func (r *registry) Close() error {
	var firstErr error
	for _, closer := range []func() error{
		r.learning.Close,
		r.history.Close,
		r.knowledge.Close,
	} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
