// Package pipeline orchestrates one chat request end to end:
// preprocessing, complexity scoring, routing, quality-gated generation,
// safety filtering, persistence and feedback learning.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warhack811/ai/internal/backend"
	"github.com/warhack811/ai/internal/cache"
	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/complexity"
	"github.com/warhack811/ai/internal/history"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/metrics"
	"github.com/warhack811/ai/internal/prompt"
	"github.com/warhack811/ai/internal/quality"
	"github.com/warhack811/ai/internal/redact"
	"github.com/warhack811/ai/internal/retrieval"
	"github.com/warhack811/ai/internal/router"
	"github.com/warhack811/ai/internal/safety"
)

// ErrorModelKey marks responses produced by the failure path instead of
// a backend.
const ErrorModelKey = "error"

const (
	apologyAnswer  = "Üzgünüm, şu anda bir teknik sorun yaşıyorum. Lütfen tekrar dener misiniz?"
	fallbackAnswer = "Üzgünüm, cevap üretemedim."
)

// Config holds pipeline configuration.
type Config struct {
	// MaxAttempts caps the generation loop.
	MaxAttempts int `koanf:"max_attempts"`

	// RetryBackoff is slept between attempts.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// LearnQueueSize bounds the async feedback queue; a full queue
	// drops events instead of blocking requests.
	LearnQueueSize int `koanf:"learn_queue_size"`

	// HistoryChars and ProfileChars cap those context sections.
	HistoryChars int `koanf:"history_chars"`
	ProfileChars int `koanf:"profile_chars"`

	// CacheTTL is how long preprocessing results are memoized.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    2,
		RetryBackoff:   500 * time.Millisecond,
		LearnQueueSize: 64,
		HistoryChars:   500,
		ProfileChars:   200,
		CacheTTL:       10 * time.Minute,
	}
}

// Request is one incoming chat turn.
type Request struct {
	UserID       string        `json:"user_id"`
	SessionID    string        `json:"session_id"`
	Message      string        `json:"message"`
	Mode         classify.Mode `json:"mode"`
	ForcedModel  string        `json:"forced_model"`
	UseWebSearch bool          `json:"use_web_search"`
}

// Metadata describes how an answer was produced.
type Metadata struct {
	Intent         classify.Intent    `json:"intent"`
	Emotion        classify.Emotion   `json:"emotion"`
	Sentiment      classify.Sentiment `json:"sentiment"`
	Complexity     int                `json:"complexity"`
	QualityScore   float64            `json:"quality_score"`
	RoutingSource  router.Source      `json:"routing_source"`
	SafetyLevel    safety.Level       `json:"safety_level"`
	Attempts       int                `json:"attempts"`
	ResponseTimeMS float64            `json:"response_time_ms"`
}

// Response is the finished answer for one chat turn.
type Response struct {
	Answer    string             `json:"answer"`
	Sources   []retrieval.Source `json:"sources,omitempty"`
	ModelKey  string             `json:"used_model"`
	SessionID string             `json:"session_id"`
	MessageID string             `json:"message_id"`
	Metadata  Metadata           `json:"metadata"`
}

// ContextBuilder assembles retrieval context.
type ContextBuilder interface {
	Build(ctx context.Context, query string, useWeb bool, intent classify.Intent, mode classify.Mode) (string, []retrieval.Source, error)
}

// Selector routes a request to a backend.
type Selector interface {
	Select(ctx context.Context, query string, mode classify.Mode, intent classify.Intent, forcedKey string) (router.Decision, error)
}

// GeneratorProvider resolves pool keys to generators.
type GeneratorProvider interface {
	Generator(key string) (backend.Generator, error)
}

// HistoryStore is the conversation persistence the pipeline needs.
type HistoryStore interface {
	Append(ctx context.Context, msg history.Message) (string, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
	LastUserMessage(ctx context.Context, sessionID string) (string, error)
	ProfileSummary(ctx context.Context, userID string) (string, error)
}

// Recorder receives feedback events from the learn worker.
type Recorder interface {
	Record(ctx context.Context, event learning.FeedbackEvent) error
}

// Pipeline wires the whole request flow.
type Pipeline struct {
	cfg Config

	intents  classify.IntentClassifier
	emotions classify.EmotionClassifier
	builder  ContextBuilder
	selector Selector
	backends GeneratorProvider
	renderer prompt.Renderer
	quality  *quality.Evaluator
	safety   safety.Filter
	store    HistoryStore
	redactor redact.Redactor
	signals  *learning.SignalClassifier
	memo     *cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger

	learn *learnWorker
}

// Deps carries the pipeline's collaborators. Optional fields are
// documented; the rest are required.
type Deps struct {
	Intents  classify.IntentClassifier
	Emotions classify.EmotionClassifier
	Builder  ContextBuilder
	Selector Selector
	Backends GeneratorProvider
	Renderer prompt.Renderer
	Quality  *quality.Evaluator
	Safety   safety.Filter
	// Store may be nil; history and profiles are then skipped.
	Store HistoryStore
	// Redactor may be nil; stored turns are then kept verbatim.
	Redactor redact.Redactor
	// Recorder may be nil; feedback learning is then disabled.
	Recorder Recorder
	Signals  *learning.SignalClassifier
	// Memo may be nil to disable preprocessing memoization.
	Memo    *cache.Cache
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// New validates deps and builds a pipeline. Call Start before Handle
// and Stop on shutdown.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Intents == nil {
		return nil, fmt.Errorf("intent classifier cannot be nil")
	}
	if deps.Emotions == nil {
		return nil, fmt.Errorf("emotion classifier cannot be nil")
	}
	if deps.Selector == nil {
		return nil, fmt.Errorf("selector cannot be nil")
	}
	if deps.Backends == nil {
		return nil, fmt.Errorf("generator provider cannot be nil")
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("prompt renderer cannot be nil")
	}
	if deps.Quality == nil {
		return nil, fmt.Errorf("quality evaluator cannot be nil")
	}
	if deps.Safety == nil {
		return nil, fmt.Errorf("safety filter cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	if deps.Signals == nil {
		deps.Signals = learning.NewSignalClassifier(0)
	}
	if deps.Redactor == nil {
		deps.Redactor = redact.NoopRedactor{}
	}

	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.LearnQueueSize <= 0 {
		cfg.LearnQueueSize = def.LearnQueueSize
	}
	if cfg.HistoryChars <= 0 {
		cfg.HistoryChars = def.HistoryChars
	}
	if cfg.ProfileChars <= 0 {
		cfg.ProfileChars = def.ProfileChars
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	p := &Pipeline{
		cfg:      cfg,
		intents:  deps.Intents,
		emotions: deps.Emotions,
		builder:  deps.Builder,
		selector: deps.Selector,
		backends: deps.Backends,
		renderer: deps.Renderer,
		quality:  deps.Quality,
		safety:   deps.Safety,
		store:    deps.Store,
		redactor: deps.Redactor,
		signals:  deps.Signals,
		memo:     deps.Memo,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("pipeline"),
	}

	if deps.Recorder != nil {
		p.learn = newLearnWorker(deps.Recorder, cfg.LearnQueueSize, deps.Metrics, p.logger)
	}

	return p, nil
}

// Start launches the background learn worker.
func (p *Pipeline) Start() {
	if p.learn != nil {
		p.learn.Start()
	}
}

// Stop drains and stops the learn worker.
func (p *Pipeline) Stop() {
	if p.learn != nil {
		p.learn.Stop()
	}
}

// preprocessed is the join-barrier result of the parallel phase.
type preprocessed struct {
	intent      classify.Intent
	emotion     classify.EmotionResult
	historyText string
	profileText string
	ragText     string
	sources     []retrieval.Source
	prevUserMsg string
}

// Handle runs one request through the pipeline.
func (p *Pipeline) Handle(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	if strings.TrimSpace(req.Message) == "" {
		return Response{}, fmt.Errorf("message cannot be empty")
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}
	if req.SessionID == "" {
		req.SessionID = fmt.Sprintf("session_%s_%d", req.UserID, time.Now().Unix())
	}
	if req.Mode == "" {
		req.Mode = classify.ModeNormal
	}

	message := normalize(req.Message)

	pre := p.preprocess(ctx, req, message)

	score := complexity.Score(message, req.Mode, pre.intent)

	decision, err := p.selector.Select(ctx, message, req.Mode, pre.intent, req.ForcedModel)
	if err != nil {
		p.metrics.RequestsTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("routing: %w", err)
	}
	p.metrics.RoutingDecisionsTotal.WithLabelValues(string(decision.Source)).Inc()

	promptContext := p.composeContext(message, req.Mode, pre)
	system, user := p.renderer.Render(req.Mode, message, promptContext)
	if hint := toneHint(pre.emotion); hint != "" {
		system += "\n\n" + hint
	}

	answer, modelKey, qualityScore, attempts := p.generate(ctx, decision.ModelKey, system, user, message, pre.sources)

	safeAnswer, safetyLevel := p.safety.Apply(answer)

	messageID := p.persist(ctx, req, safeAnswer, modelKey)

	elapsed := time.Since(start)

	p.enqueueLearning(req, messageID, safeAnswer, modelKey, pre, score, elapsed)

	status := "ok"
	if modelKey == ErrorModelKey {
		status = "error"
	}
	p.metrics.RequestsTotal.WithLabelValues(status).Inc()
	p.metrics.RequestDuration.WithLabelValues(modelKey).Observe(elapsed.Seconds())

	return Response{
		Answer:    safeAnswer,
		Sources:   pre.sources,
		ModelKey:  modelKey,
		SessionID: req.SessionID,
		MessageID: messageID,
		Metadata: Metadata{
			Intent:         pre.intent,
			Emotion:        pre.emotion.Emotion,
			Sentiment:      pre.emotion.Sentiment,
			Complexity:     score,
			QualityScore:   qualityScore,
			RoutingSource:  decision.Source,
			SafetyLevel:    safetyLevel,
			Attempts:       attempts,
			ResponseTimeMS: float64(elapsed.Milliseconds()),
		},
	}, nil
}

// preprocess runs intent, emotion, history, profile and retrieval
// concurrently. Every branch fails soft: a broken collaborator leaves
// its slot empty rather than failing the request. Retrieval runs with a
// provisional question intent since the real one is being classified in
// parallel.
func (p *Pipeline) preprocess(ctx context.Context, req Request, message string) preprocessed {
	pre := preprocessed{
		intent: classify.IntentUnknown,
		emotion: classify.EmotionResult{
			Sentiment: classify.SentimentNeutral,
			Emotion:   classify.EmotionNeutral,
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pre.intent = p.classifyIntent(message, req.Mode)
		return nil
	})

	g.Go(func() error {
		pre.emotion = p.analyzeEmotion(message)
		return nil
	})

	if p.store != nil {
		g.Go(func() error {
			recent, err := p.store.Recent(gctx, req.SessionID, 0)
			if err != nil {
				p.logger.Warn("history fetch failed", zap.Error(err))
				return nil
			}
			pre.historyText = renderHistory(recent, p.cfg.HistoryChars)
			for i := len(recent) - 1; i >= 0; i-- {
				if recent[i].Role == history.RoleUser {
					pre.prevUserMsg = recent[i].Content
					break
				}
			}
			return nil
		})

		g.Go(func() error {
			pre.profileText = p.fetchProfile(gctx, req.UserID)
			return nil
		})
	}

	if p.builder != nil {
		g.Go(func() error {
			text, sources, err := p.builder.Build(gctx, message, req.UseWebSearch, classify.IntentQuestion, req.Mode)
			if err != nil {
				p.logger.Warn("retrieval failed", zap.Error(err))
				return nil
			}
			pre.ragText = text
			pre.sources = sources
			return nil
		})
	}

	// branches never return errors
	_ = g.Wait()
	return pre
}

func (p *Pipeline) classifyIntent(message string, mode classify.Mode) classify.Intent {
	if p.memo == nil {
		return p.intents.Classify(message, mode)
	}
	key := cache.Key("intent", message, string(mode))
	if v, ok := p.memo.Get(key); ok {
		p.metrics.CacheHitsTotal.Inc()
		if intent, ok := v.(classify.Intent); ok {
			return intent
		}
	}
	p.metrics.CacheMissesTotal.Inc()
	intent := p.intents.Classify(message, mode)
	p.memo.Set(key, intent, p.cfg.CacheTTL)
	return intent
}

// fetchProfile memoizes profile summaries at half the classifier TTL;
// profiles drift as sessions append.
func (p *Pipeline) fetchProfile(ctx context.Context, userID string) string {
	key := cache.Key("profile", userID)
	if p.memo != nil {
		if v, ok := p.memo.Get(key); ok {
			p.metrics.CacheHitsTotal.Inc()
			if s, ok := v.(string); ok {
				return s
			}
		}
		p.metrics.CacheMissesTotal.Inc()
	}
	summary, err := p.store.ProfileSummary(ctx, userID)
	if err != nil {
		p.logger.Warn("profile fetch failed", zap.Error(err))
		return ""
	}
	summary = truncate(summary, p.cfg.ProfileChars)
	if p.memo != nil {
		p.memo.Set(key, summary, p.cfg.CacheTTL/2)
	}
	return summary
}

func (p *Pipeline) analyzeEmotion(message string) classify.EmotionResult {
	if p.memo == nil {
		return p.emotions.Analyze(message)
	}
	key := cache.Key("emotion", message)
	if v, ok := p.memo.Get(key); ok {
		p.metrics.CacheHitsTotal.Inc()
		if res, ok := v.(classify.EmotionResult); ok {
			return res
		}
	}
	p.metrics.CacheMissesTotal.Inc()
	res := p.emotions.Analyze(message)
	p.memo.Set(key, res, p.cfg.CacheTTL)
	return res
}

// composeContext assembles the gated context sections: profile for
// personal queries, retrieval unless gated off, history unless the
// conversation is fresh or creative.
func (p *Pipeline) composeContext(message string, mode classify.Mode, pre preprocessed) string {
	var parts []string

	if retrieval.IncludeProfile(message, pre.intent) && pre.profileText != "" {
		parts = append(parts, "[Kullanıcı Hakkında]\n"+pre.profileText)
	}
	if pre.ragText != "" && retrieval.IncludeRetrieval(message, pre.intent, mode) {
		parts = append(parts, "[İlgili Bilgiler]\n"+pre.ragText)
	}
	if retrieval.IncludeHistory(message, pre.intent) && pre.historyText != "" {
		parts = append(parts, "[Önceki Konuşma]\n"+pre.historyText)
	}

	return strings.Join(parts, "\n\n")
}

// toneHint appends a register instruction for emotionally charged
// messages. Weak signals get no hint.
func toneHint(e classify.EmotionResult) string {
	if e.Intensity < 0.3 {
		return ""
	}
	switch e.Emotion {
	case classify.EmotionSadness, classify.EmotionFear:
		return "TON: Kullanıcı üzgün veya endişeli görünüyor. Nazik, destekleyici ve sakin bir dil kullan."
	case classify.EmotionAnger:
		return "TON: Kullanıcı sinirli görünüyor. Sakin kal, anlayış göster ve çözüme odaklan."
	case classify.EmotionJoy:
		return "TON: Kullanıcı neşeli. Enerjik ve pozitif bir dil kullan."
	default:
		return ""
	}
}

// generate runs the retry loop: attempt, evaluate, keep the best
// answer, stop early when the quality gate passes. Total failure
// returns the apology with the error model key.
func (p *Pipeline) generate(ctx context.Context, modelKey, system, user, message string, sources []retrieval.Source) (string, string, float64, int) {
	gen, err := p.backends.Generator(modelKey)
	if err != nil {
		p.logger.Error("backend lookup failed", zap.String("model_key", modelKey), zap.Error(err))
		p.metrics.GenerationAttemptsTotal.WithLabelValues("error").Inc()
		return apologyAnswer, ErrorModelKey, 0, 0
	}

	sourceTexts := make([]string, 0, len(sources))
	for _, s := range sources {
		sourceTexts = append(sourceTexts, s.Snippet)
	}

	bestAnswer := ""
	bestScore := 0.0
	attempts := 0
	failures := 0

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		attempts++

		raw, err := gen.Generate(ctx, system, user)
		if err != nil {
			failures++
			p.logger.Warn("generation attempt failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			p.metrics.GenerationAttemptsTotal.WithLabelValues("error").Inc()
			if attempt < p.cfg.MaxAttempts-1 {
				select {
				case <-time.After(p.cfg.RetryBackoff):
				case <-ctx.Done():
					return apologyAnswer, ErrorModelKey, 0, attempts
				}
			}
			continue
		}

		assessment := p.quality.Evaluate(raw, message, sourceTexts)
		p.metrics.QualityScore.Observe(assessment.Score)

		if assessment.Score > bestScore {
			bestAnswer = assessment.Cleaned
			bestScore = assessment.Score
		}

		if assessment.Accepted {
			p.metrics.GenerationAttemptsTotal.WithLabelValues("accepted").Inc()
			break
		}

		p.metrics.GenerationAttemptsTotal.WithLabelValues("rejected").Inc()
		p.logger.Warn("quality below threshold, retrying",
			zap.Float64("score", assessment.Score),
			zap.Int("attempt", attempt+1))

		if attempt < p.cfg.MaxAttempts-1 {
			select {
			case <-time.After(p.cfg.RetryBackoff):
			case <-ctx.Done():
				if bestAnswer == "" {
					return fallbackAnswer, modelKey, bestScore, attempts
				}
				return bestAnswer, modelKey, bestScore, attempts
			}
		}
	}

	if failures == attempts {
		return apologyAnswer, ErrorModelKey, 0, attempts
	}
	if bestAnswer == "" {
		return fallbackAnswer, modelKey, bestScore, attempts
	}
	return bestAnswer, modelKey, bestScore, attempts
}

// persist appends both turns best-effort and returns the assistant
// message id used for feedback backfill. Secrets and personal
// identifiers are masked before storage.
func (p *Pipeline) persist(ctx context.Context, req Request, answer, modelKey string) string {
	if p.store == nil {
		return ""
	}

	userTurn := p.redactor.Redact(req.Message)
	if len(userTurn.Findings) > 0 {
		p.logger.Info("redacted user message before storage",
			zap.Int("findings", len(userTurn.Findings)))
	}

	if _, err := p.store.Append(ctx, history.Message{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Role:      history.RoleUser,
		Content:   userTurn.Redacted,
	}); err != nil {
		p.logger.Warn("saving user message failed", zap.Error(err))
	}

	id, err := p.store.Append(ctx, history.Message{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Role:      history.RoleAssistant,
		Content:   p.redactor.Redact(answer).Redacted,
		ModelKey:  modelKey,
	})
	if err != nil {
		p.logger.Warn("saving assistant message failed", zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) enqueueLearning(req Request, messageID, answer, modelKey string, pre preprocessed, score int, elapsed time.Duration) {
	if p.learn == nil {
		return
	}

	signal := p.signals.Classify(req.Message, pre.prevUserMsg)
	p.metrics.FeedbackEventsTotal.WithLabelValues(string(signal)).Inc()

	p.learn.Enqueue(learning.FeedbackEvent{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		MessageID:      messageID,
		Query:          p.redactor.Redact(req.Message).Redacted,
		Response:       p.redactor.Redact(answer).Redacted,
		ModelUsed:      modelKey,
		Signal:         signal,
		Intent:         string(pre.intent),
		Mode:           string(req.Mode),
		Complexity:     score,
		ResponseTimeMS: float64(elapsed.Milliseconds()),
		Timestamp:      time.Now().UTC(),
	})
}

// normalize collapses whitespace in user input.
func normalize(message string) string {
	return strings.Join(strings.Fields(message), " ")
}

// renderHistory formats the last turns oldest-first under a character
// cap, dropping oldest turns first.
func renderHistory(messages []history.Message, maxChars int) string {
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		who := "Kullanıcı"
		if m.Role == history.RoleAssistant {
			who = "Asistan"
		}
		lines = append(lines, who+": "+m.Content)
	}

	text := strings.Join(lines, "\n")
	for len(text) > maxChars && len(lines) > 1 {
		lines = lines[1:]
		text = strings.Join(lines, "\n")
	}
	return truncate(text, maxChars)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
