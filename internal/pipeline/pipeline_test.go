package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/backend"
	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/history"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/prompt"
	"github.com/warhack811/ai/internal/quality"
	"github.com/warhack811/ai/internal/redact"
	"github.com/warhack811/ai/internal/retrieval"
	"github.com/warhack811/ai/internal/router"
	"github.com/warhack811/ai/internal/safety"
)

const goodAnswer = "Goroutine Go dilinde hafif bir iş parçacığıdır. Başlatmak için go anahtar kelimesi kullanılır ve çalışma zamanı bunları kendi zamanlayıcısıyla yönetir. Kanallar ile veri paylaşımı güvenli şekilde yapılır. Binlerce goroutine aynı anda sorunsuz çalışabilir."

const goodQuery = "Go dilinde goroutine nedir ve nasıl kullanılır?"

type stubSelector struct {
	decision router.Decision
	err      error
}

func (s *stubSelector) Select(_ context.Context, _ string, _ classify.Mode, _ classify.Intent, forced string) (router.Decision, error) {
	if s.err != nil {
		return router.Decision{}, s.err
	}
	d := s.decision
	if forced != "" {
		d.ModelKey = forced
		d.Source = router.SourceForced
	}
	return d, nil
}

type stubGenerator struct {
	mu      sync.Mutex
	answers []string
	errs    []error
	calls   int
}

func (g *stubGenerator) Generate(_ context.Context, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.answers) {
		return g.answers[i], nil
	}
	if len(g.answers) > 0 {
		return g.answers[len(g.answers)-1], nil
	}
	return "", errors.New("no answer configured")
}

type stubProvider struct {
	gen backend.Generator
	err error
}

func (p *stubProvider) Generator(string) (backend.Generator, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.gen, nil
}

type stubBuilder struct {
	text    string
	sources []retrieval.Source
	err     error
}

func (b *stubBuilder) Build(context.Context, string, bool, classify.Intent, classify.Mode) (string, []retrieval.Source, error) {
	return b.text, b.sources, b.err
}

type memoryHistory struct {
	mu       sync.Mutex
	messages []history.Message
	profiles map[string]string
	nextID   int
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{profiles: map[string]string{}}
}

func (h *memoryHistory) Append(_ context.Context, msg history.Message) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	msg.ID = fmt.Sprintf("msg-%d", h.nextID)
	h.messages = append(h.messages, msg)
	return msg.ID, nil
}

func (h *memoryHistory) Recent(_ context.Context, sessionID string, _ int) ([]history.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []history.Message
	for _, m := range h.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (h *memoryHistory) LastUserMessage(_ context.Context, sessionID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].SessionID == sessionID && h.messages[i].Role == history.RoleUser {
			return h.messages[i].Content, nil
		}
	}
	return "", nil
}

func (h *memoryHistory) ProfileSummary(_ context.Context, userID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.profiles[userID], nil
}

type captureRecorder struct {
	mu     sync.Mutex
	events []learning.FeedbackEvent
	block  chan struct{}
}

func (r *captureRecorder) Record(ctx context.Context, event learning.FeedbackEvent) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *captureRecorder) snapshot() []learning.FeedbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]learning.FeedbackEvent, len(r.events))
	copy(out, r.events)
	return out
}

func testDeps(gen backend.Generator) Deps {
	return Deps{
		Intents:  classify.NewKeywordIntentClassifier(),
		Emotions: classify.NewKeywordEmotionClassifier(),
		Builder:  &stubBuilder{},
		Selector: &stubSelector{decision: router.Decision{ModelKey: "fast", Source: router.SourceStatic}},
		Backends: &stubProvider{gen: gen},
		Renderer: prompt.NewConsultantRenderer(),
		Quality:  quality.NewEvaluator(quality.DefaultConfig()),
		Safety:   safety.NewKeywordFilter(safety.Config{Enabled: false}),
		Store:    newMemoryHistory(),
		Logger:   zap.NewNop(),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestHandleHappyPath(t *testing.T) {
	gen := &stubGenerator{answers: []string{goodAnswer}}
	deps := testDeps(gen)
	rec := &captureRecorder{}
	deps.Recorder = rec

	p, err := New(testConfig(), deps)
	require.NoError(t, err)
	p.Start()
	defer p.Stop()

	resp, err := p.Handle(context.Background(), Request{
		UserID:    "u1",
		SessionID: "s1",
		Message:   goodQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, "fast", resp.ModelKey)
	assert.NotEmpty(t, resp.Answer)
	assert.NotEmpty(t, resp.MessageID)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, 1, resp.Metadata.Attempts)
	assert.GreaterOrEqual(t, resp.Metadata.QualityScore, 0.7)
	assert.Equal(t, router.SourceStatic, resp.Metadata.RoutingSource)

	p.Stop()
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "fast", events[0].ModelUsed)
	assert.Equal(t, learning.SignalNewConversation, events[0].Signal)
	assert.Equal(t, resp.MessageID, events[0].MessageID)
}

func TestHandleEmptyMessage(t *testing.T) {
	p, err := New(testConfig(), testDeps(&stubGenerator{answers: []string{goodAnswer}}))
	require.NoError(t, err)

	_, err = p.Handle(context.Background(), Request{UserID: "u1", Message: "   "})
	assert.Error(t, err)
}

func TestHandleDefaultsSessionAndUser(t *testing.T) {
	p, err := New(testConfig(), testDeps(&stubGenerator{answers: []string{goodAnswer}}))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{Message: goodQuery})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleRetryThenAccept(t *testing.T) {
	gen := &stubGenerator{answers: []string{"ksa", goodAnswer}}
	p, err := New(testConfig(), testDeps(gen))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Metadata.Attempts)
	assert.Equal(t, "fast", resp.ModelKey)
	assert.GreaterOrEqual(t, resp.Metadata.QualityScore, 0.7)
}

func TestHandleKeepsBestAttempt(t *testing.T) {
	// Both attempts miss the gate; the better one is still served.
	mediocre := "Goroutine hafif bir yapıdır ve go ile başlar."
	gen := &stubGenerator{answers: []string{"ksa", mediocre}}
	p, err := New(testConfig(), testDeps(gen))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Metadata.Attempts)
	assert.Contains(t, resp.Answer, "Goroutine")
	assert.Equal(t, "fast", resp.ModelKey)
}

func TestHandleAllAttemptsFail(t *testing.T) {
	gen := &stubGenerator{errs: []error{errors.New("down"), errors.New("down")}}
	p, err := New(testConfig(), testDeps(gen))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, ErrorModelKey, resp.ModelKey)
	assert.Equal(t, "Üzgünüm, şu anda bir teknik sorun yaşıyorum. Lütfen tekrar dener misiniz?", resp.Answer)
	assert.Equal(t, 2, resp.Metadata.Attempts)
}

func TestHandleFirstFailsSecondSucceeds(t *testing.T) {
	gen := &stubGenerator{
		errs:    []error{errors.New("down"), nil},
		answers: []string{"", goodAnswer},
	}
	p, err := New(testConfig(), testDeps(gen))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	assert.Equal(t, "fast", resp.ModelKey)
	assert.Equal(t, 2, resp.Metadata.Attempts)
	assert.NotEqual(t, ErrorModelKey, resp.ModelKey)
}

func TestHandleUnknownBackend(t *testing.T) {
	deps := testDeps(&stubGenerator{})
	deps.Backends = &stubProvider{err: backend.ErrUnknownBackend}
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)
	assert.Equal(t, ErrorModelKey, resp.ModelKey)
}

func TestHandleRoutingError(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	deps.Selector = &stubSelector{err: errors.New("no backends")}
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	_, err = p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	assert.Error(t, err)
}

func TestHandleForcedModel(t *testing.T) {
	p, err := New(testConfig(), testDeps(&stubGenerator{answers: []string{goodAnswer}}))
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery, ForcedModel: "deep",
	})
	require.NoError(t, err)
	assert.Equal(t, "deep", resp.ModelKey)
	assert.Equal(t, router.SourceForced, resp.Metadata.RoutingSource)
}

func TestHandlePersistsBothTurns(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	store := newMemoryHistory()
	deps.Store = store
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	_, err = p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	msgs, err := store.Recent(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, history.RoleUser, msgs[0].Role)
	assert.Equal(t, history.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "fast", msgs[1].ModelKey)
}

func TestHandleRedactsPersistedTurns(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	store := newMemoryHistory()
	deps.Store = store
	r, err := redact.New(redact.Config{Enabled: true})
	require.NoError(t, err)
	deps.Redactor = r

	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1",
		Message: "mailim ornek@example.com, goroutine nedir?",
	})
	require.NoError(t, err)

	msgs, err := store.Recent(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotContains(t, msgs[0].Content, "ornek@example.com")
	assert.Contains(t, msgs[0].Content, "[GİZLİ]")
	assert.NotEmpty(t, resp.Answer)
}

func TestHandleRetrievalFailureIsSoft(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	deps.Builder = &stubBuilder{err: errors.New("index offline")}
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.NotEqual(t, ErrorModelKey, resp.ModelKey)
}

func TestHandleSourcesSurface(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	deps.Builder = &stubBuilder{
		text: "goroutine dokümantasyonu",
		sources: []retrieval.Source{
			{Type: retrieval.SourceLocal, Title: "concurrency.md", Snippet: "goroutine", Score: 2},
		},
	}
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	resp, err := p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "concurrency.md", resp.Sources[0].Title)
}

func TestLearnWorkerDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	rec := &captureRecorder{block: block}
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	deps.Recorder = rec

	cfg := testConfig()
	cfg.LearnQueueSize = 1
	p, err := New(cfg, deps)
	require.NoError(t, err)

	// Worker not started: the queue fills and further events drop
	// without blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			p.learn.Enqueue(learning.FeedbackEvent{
				UserID: "u1", SessionID: "s1", ModelUsed: "fast",
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(block)
	p.Start()
	p.Stop()
	assert.Len(t, rec.snapshot(), 1)
}

func TestLearnWorkerStartStopIdempotent(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	deps.Recorder = &captureRecorder{}
	p, err := New(testConfig(), deps)
	require.NoError(t, err)

	p.Start()
	p.Start()
	p.Stop()
	p.Stop()
}

func TestHandleSignalClassification(t *testing.T) {
	deps := testDeps(&stubGenerator{answers: []string{goodAnswer}})
	store := newMemoryHistory()
	deps.Store = store
	rec := &captureRecorder{}
	deps.Recorder = rec
	p, err := New(testConfig(), deps)
	require.NoError(t, err)
	p.Start()

	_, err = p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: goodQuery,
	})
	require.NoError(t, err)

	_, err = p.Handle(context.Background(), Request{
		UserID: "u1", SessionID: "s1", Message: "anlamadım, daha basit anlatır mısın?",
	})
	require.NoError(t, err)

	p.Stop()
	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, learning.SignalNewConversation, events[0].Signal)
	assert.Equal(t, learning.SignalClarification, events[1].Signal)
}

func TestNewValidation(t *testing.T) {
	deps := testDeps(&stubGenerator{})
	deps.Selector = nil
	_, err := New(testConfig(), deps)
	assert.Error(t, err)

	deps = testDeps(&stubGenerator{})
	deps.Quality = nil
	_, err = New(testConfig(), deps)
	assert.Error(t, err)
}

func TestRenderHistory(t *testing.T) {
	msgs := []history.Message{
		{Role: history.RoleUser, Content: "merhaba"},
		{Role: history.RoleAssistant, Content: "Merhaba, nasıl yardımcı olabilirim?"},
	}
	text := renderHistory(msgs, 500)
	assert.Contains(t, text, "Kullanıcı: merhaba")
	assert.Contains(t, text, "Asistan: Merhaba")

	// Oldest turns drop first under a tight cap.
	tight := renderHistory(msgs, 40)
	assert.NotContains(t, tight, "merhaba\n")
	assert.Contains(t, tight, "Asistan")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", normalize("  a\n b\t c  "))
}

func TestToneHint(t *testing.T) {
	assert.Empty(t, toneHint(classify.EmotionResult{Emotion: classify.EmotionNeutral}))
	assert.Empty(t, toneHint(classify.EmotionResult{Emotion: classify.EmotionAnger, Intensity: 0.1}))
	assert.Contains(t, toneHint(classify.EmotionResult{Emotion: classify.EmotionSadness, Intensity: 0.8}), "destekleyici")
	assert.Contains(t, toneHint(classify.EmotionResult{Emotion: classify.EmotionAnger, Intensity: 0.5}), "Sakin")
}
