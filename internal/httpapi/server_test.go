package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warhack811/ai/internal/classify"
	"github.com/warhack811/ai/internal/learning"
	"github.com/warhack811/ai/internal/pipeline"
)

type stubChat struct {
	lastReq pipeline.Request
	resp    pipeline.Response
	err     error
}

func (s *stubChat) Handle(_ context.Context, req pipeline.Request) (pipeline.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return pipeline.Response{}, s.err
	}
	return s.resp, nil
}

type stubFeedback struct {
	backfillErr error
	stats       learning.Stats
	statsErr    error

	lastUserID    string
	lastMessageID string
	lastRating    int
}

func (s *stubFeedback) BackfillRating(_ context.Context, userID, messageID string, rating int) error {
	s.lastUserID = userID
	s.lastMessageID = messageID
	s.lastRating = rating
	return s.backfillErr
}

func (s *stubFeedback) Stats(context.Context) (learning.Stats, error) {
	return s.stats, s.statsErr
}

func newTestServer(t *testing.T, chat *stubChat, feedback FeedbackStore, cfg *Config) *Server {
	t.Helper()
	srv, err := NewServer(chat, feedback, zap.NewNop(), cfg)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		srv := newTestServer(t, &stubChat{}, &stubFeedback{}, &Config{Host: "localhost", Port: 8080})
		assert.NotNil(t, srv.echo)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		srv := newTestServer(t, &stubChat{}, &stubFeedback{}, nil)
		assert.Equal(t, "localhost", srv.config.Host)
		assert.Equal(t, 8080, srv.config.Port)
	})

	t.Run("returns error when chat handler is nil", func(t *testing.T) {
		_, err := NewServer(nil, &stubFeedback{}, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "chat handler cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(&stubChat{}, &stubFeedback{}, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChat{}, &stubFeedback{}, nil)

	rec := doJSON(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubChat{}, &stubFeedback{}, nil)

	rec := doJSON(srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	t.Run("returns pipeline response", func(t *testing.T) {
		chat := &stubChat{resp: pipeline.Response{
			Answer:    "merhaba",
			ModelKey:  "fast",
			SessionID: "s1",
			MessageID: "m1",
		}}
		srv := newTestServer(t, chat, &stubFeedback{}, nil)

		rec := doJSON(srv, http.MethodPost, "/api/v1/chat", ChatRequest{
			UserID:    "u1",
			SessionID: "s1",
			Message:   "selam",
			Mode:      "friend",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp pipeline.Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "merhaba", resp.Answer)
		assert.Equal(t, "fast", resp.ModelKey)

		assert.Equal(t, classify.ModeFriend, chat.lastReq.Mode)
		assert.Equal(t, "u1", chat.lastReq.UserID)
	})

	t.Run("unknown mode falls back to normal", func(t *testing.T) {
		chat := &stubChat{}
		srv := newTestServer(t, chat, &stubFeedback{}, nil)

		rec := doJSON(srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "selam", Mode: "turbo"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, classify.ModeNormal, chat.lastReq.Mode)
	})

	t.Run("rejects empty message", func(t *testing.T) {
		srv := newTestServer(t, &stubChat{}, &stubFeedback{}, nil)
		rec := doJSON(srv, http.MethodPost, "/api/v1/chat", ChatRequest{UserID: "u1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps pipeline errors to 500", func(t *testing.T) {
		srv := newTestServer(t, &stubChat{err: errors.New("boom")}, &stubFeedback{}, nil)
		rec := doJSON(srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "selam"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestFeedbackEndpoint(t *testing.T) {
	t.Run("records rating", func(t *testing.T) {
		fb := &stubFeedback{}
		srv := newTestServer(t, &stubChat{}, fb, nil)

		rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", FeedbackRequest{
			UserID: "u1", MessageID: "m1", Rating: 5,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", fb.lastUserID)
		assert.Equal(t, "m1", fb.lastMessageID)
		assert.Equal(t, 5, fb.lastRating)
	})

	t.Run("unknown message returns 404", func(t *testing.T) {
		fb := &stubFeedback{backfillErr: learning.ErrEventNotFound}
		srv := newTestServer(t, &stubChat{}, fb, nil)

		rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", FeedbackRequest{
			UserID: "u1", MessageID: "missing", Rating: 4,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid rating returns 400", func(t *testing.T) {
		fb := &stubFeedback{backfillErr: learning.ErrInvalidRating}
		srv := newTestServer(t, &stubChat{}, fb, nil)

		rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", FeedbackRequest{
			UserID: "u1", MessageID: "m1", Rating: 9,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields return 400", func(t *testing.T) {
		srv := newTestServer(t, &stubChat{}, &stubFeedback{}, nil)
		rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", FeedbackRequest{Rating: 4})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("disabled learning returns 501", func(t *testing.T) {
		srv, err := NewServer(&stubChat{}, nil, zap.NewNop(), nil)
		require.NoError(t, err)
		rec := doJSON(srv, http.MethodPost, "/api/v1/feedback", FeedbackRequest{
			UserID: "u1", MessageID: "m1", Rating: 4,
		})
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestLearningStatsEndpoint(t *testing.T) {
	fb := &stubFeedback{stats: learning.Stats{TotalEvents: 42}}
	srv := newTestServer(t, &stubChat{}, fb, nil)

	rec := doJSON(srv, http.MethodGet, "/api/v1/learning/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats learning.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 42, stats.TotalEvents)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, &stubChat{}, &stubFeedback{}, &Config{
		Host:             "localhost",
		Port:             8080,
		RateLimitEnabled: true,
		RateLimitRPS:     1,
		RateLimitBurst:   2,
	})

	var ok, limited int
	for i := 0; i < 5; i++ {
		rec := doJSON(srv, http.MethodPost, "/api/v1/chat", ChatRequest{Message: "selam"})
		switch rec.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
		}
	}

	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, limited)

	// Separate clients have separate budgets.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString(`{"message":"selam"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "someone-else")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
