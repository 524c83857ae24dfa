package learning

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	// confidenceDivisor: confidence = min(1, sample_size/100).
	confidenceDivisor = 100.0

	// minSupportModel is the minimum sample size for model-level insights.
	minSupportModel = 10

	// minSupportFine is the minimum sample size for intent- and
	// complexity-bucket views.
	minSupportFine = 5

	// modelViewWeight discounts the coarse model-level view when summing
	// the three views in Recommend.
	modelViewWeight = 0.5

	// recommendFullSupport is the sample size at which the coverage term
	// of a recommendation's confidence saturates.
	recommendFullSupport = 20.0
)

// Config holds learning store configuration.
type Config struct {
	// Path is the SQLite file. ":memory:" is accepted for tests.
	Path string `koanf:"path"`

	// WindowDays is the trailing window for insight recomputation.
	WindowDays int `koanf:"window_days"`

	// RecomputeEvery triggers a recompute after this many recorded
	// events, in addition to the recompute after every explicit rating.
	RecomputeEvery int `koanf:"recompute_every"`

	// SimilarityThreshold is the Jaccard similarity above which two
	// consecutive user turns count as a retry.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{
		Path:                "data/learning.db",
		WindowDays:          30,
		RecomputeEvery:      10,
		SimilarityThreshold: 0.7,
	}
}

// Store is the SQLite-backed learning store.
//
// sql.DB serializes access; the store adds a mutex only around the
// record counter that drives periodic recomputation.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger

	mu          sync.Mutex
	sinceRecomp int
}

// NewStore opens (creating if needed) the learning database and runs
// migrations.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("learning store path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	if cfg.RecomputeEvery <= 0 {
		cfg.RecomputeEvery = DefaultConfig().RecomputeEvery
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening learning database: %w", err)
	}
	// One connection: sqlite has a single writer, and with this driver
	// each pooled connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating learning database: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one feedback event to the log.
//
// Every RecomputeEvery-th record also triggers an insight recomputation,
// so implicit signals feed routing without waiting for explicit ratings.
func (s *Store) Record(ctx context.Context, event FeedbackEvent) error {
	if event.UserID == "" {
		return ErrEmptyUserID
	}
	if event.SessionID == "" {
		return ErrEmptySessionID
	}
	if event.ModelUsed == "" {
		return ErrEmptyModelKey
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var rating any
	if event.ExplicitRating > 0 {
		rating = event.ExplicitRating
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events (
			user_id, session_id, message_id, query, response, model_used,
			explicit_rating, implicit_signal,
			intent, mode, complexity, response_time_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.UserID, event.SessionID, event.MessageID, event.Query,
		event.Response, event.ModelUsed, rating, string(event.Signal),
		event.Intent, event.Mode, event.Complexity, event.ResponseTimeMS,
		event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting feedback event: %w", err)
	}

	s.mu.Lock()
	s.sinceRecomp++
	due := s.sinceRecomp >= s.cfg.RecomputeEvery
	if due {
		s.sinceRecomp = 0
	}
	s.mu.Unlock()

	if due {
		if err := s.RecomputeInsights(ctx); err != nil {
			s.logger.Warn("periodic insight recompute failed", zap.Error(err))
		}
	}

	return nil
}

// BackfillRating attaches an explicit 1-5 rating to a previously recorded
// event and recomputes insights immediately.
func (s *Store) BackfillRating(ctx context.Context, userID, messageID string, rating int) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE feedback_events SET explicit_rating = ?
		WHERE user_id = ? AND message_id = ?`,
		rating, userID, messageID,
	)
	if err != nil {
		return fmt.Errorf("updating rating: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rating update: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}

	if err := s.RecomputeInsights(ctx); err != nil {
		return fmt.Errorf("recomputing after rating: %w", err)
	}
	return nil
}

// RecomputeInsights rebuilds the derived insight views from the trailing
// event window. Calling it twice with no new events is a no-op in effect:
// the same rows are upserted with the same values.
func (s *Store) RecomputeInsights(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.WindowDays).Format(time.RFC3339Nano)

	if err := s.recomputeModelPerformance(ctx, cutoff); err != nil {
		return err
	}
	if err := s.recomputeIntentModelMatch(ctx, cutoff); err != nil {
		return err
	}
	if err := s.recomputeComplexityModelMatch(ctx, cutoff); err != nil {
		return err
	}
	if err := s.recomputeSpeedPreference(ctx, cutoff); err != nil {
		return err
	}
	return nil
}

// outcomeExpr scores a row on the 1-5 scale: explicit rating when present,
// otherwise the implicit signal's ordinal value.
const outcomeExpr = `CASE
	WHEN explicit_rating IS NOT NULL THEN explicit_rating
	WHEN implicit_signal = 'accepted' THEN 5
	WHEN implicit_signal = 'continuation' THEN 4
	WHEN implicit_signal = 'clarification' THEN 2
	WHEN implicit_signal = 'retry' THEN 1
	ELSE 3
END`

// pendingInsight is one fully-scanned aggregation row. Aggregations are
// drained into memory before any upsert runs: writing while the read
// cursor is open would go through a second pooled connection and hit the
// reader's lock (or, on :memory:, a separate empty database).
type pendingInsight struct {
	key   string
	total int
	value float64
}

// collectInsights runs an aggregation query whose columns are
// (key, total, value) and returns the fully-scanned result.
func (s *Store) collectInsights(ctx context.Context, query string, args ...any) ([]pendingInsight, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pendingInsight
	for rows.Next() {
		var p pendingInsight
		if err := rows.Scan(&p.key, &p.total, &p.value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) recomputeModelPerformance(ctx context.Context, cutoff string) error {
	pending, err := s.collectInsights(ctx, `
		SELECT model_used, COUNT(*) AS total, AVG(`+outcomeExpr+`)/5.0 AS value
		FROM feedback_events
		WHERE timestamp > ?
		GROUP BY model_used
		HAVING total >= ?`,
		cutoff, minSupportModel,
	)
	if err != nil {
		return fmt.Errorf("aggregating model performance: %w", err)
	}
	for _, p := range pending {
		if err := s.upsertInsight(ctx, CategoryModelPerformance, p.key, p.value, p.total); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recomputeIntentModelMatch(ctx context.Context, cutoff string) error {
	pending, err := s.collectInsights(ctx, `
		SELECT intent || ':' || model_used, COUNT(*) AS total, AVG(`+outcomeExpr+`)/5.0 AS value
		FROM feedback_events
		WHERE timestamp > ? AND intent != ''
		GROUP BY intent, model_used
		HAVING total >= ?`,
		cutoff, minSupportFine,
	)
	if err != nil {
		return fmt.Errorf("aggregating intent-model match: %w", err)
	}
	for _, p := range pending {
		if err := s.upsertInsight(ctx, CategoryIntentModelMatch, p.key, p.value, p.total); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recomputeComplexityModelMatch(ctx context.Context, cutoff string) error {
	pending, err := s.collectInsights(ctx, `
		SELECT (CASE
			WHEN complexity <= 3 THEN 'low'
			WHEN complexity <= 6 THEN 'medium'
			ELSE 'high'
		END) || ':' || model_used, COUNT(*) AS total, AVG(`+outcomeExpr+`)/5.0 AS value
		FROM feedback_events
		WHERE timestamp > ?
		GROUP BY 1
		HAVING total >= ?`,
		cutoff, minSupportFine,
	)
	if err != nil {
		return fmt.Errorf("aggregating complexity-model match: %w", err)
	}
	for _, p := range pending {
		if err := s.upsertInsight(ctx, CategoryComplexityModelMatch, p.key, p.value, p.total); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) recomputeSpeedPreference(ctx context.Context, cutoff string) error {
	pending, err := s.collectInsights(ctx, `
		SELECT CASE
			WHEN response_time_ms < 2000 THEN 'fast'
			WHEN response_time_ms < 5000 THEN 'medium'
			ELSE 'slow'
		END AS bucket, COUNT(*) AS total,
		AVG(CASE WHEN implicit_signal = 'accepted' THEN 1.0 ELSE 0.0 END) AS value
		FROM feedback_events
		WHERE timestamp > ?
		GROUP BY bucket`,
		cutoff,
	)
	if err != nil {
		return fmt.Errorf("aggregating speed preference: %w", err)
	}
	for _, p := range pending {
		if err := s.upsertInsight(ctx, CategorySpeedPreference, p.key, p.value, p.total); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertInsight(ctx context.Context, category Category, key string, value float64, sampleSize int) error {
	confidence := float64(sampleSize) / confidenceDivisor
	if confidence > 1.0 {
		confidence = 1.0
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_insights (category, key, value, confidence, sample_size, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(category, key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			sample_size = excluded.sample_size,
			last_updated = excluded.last_updated`,
		string(category), key, value, confidence, sampleSize,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting insight %s/%s: %w", category, key, err)
	}
	return nil
}

// Recommend returns the best backend for (intent, complexity) among
// availableModels, with a confidence in [0,1].
//
// Three views contribute: intent-model and complexity-model at full
// strength, model-level performance at half. The winner is the model with
// the highest sample-discounted score sum; its confidence is the
// confidence-weighted mean value across its contributing views, scaled by
// sample coverage (full at recommendFullSupport samples). A store with no
// relevant insight returns ("", 0), which callers treat as no opinion.
func (s *Store) Recommend(ctx context.Context, intent string, complexity int, availableModels []string) (Recommendation, error) {
	if len(availableModels) == 0 {
		return Recommendation{}, nil
	}

	available := make(map[string]bool, len(availableModels))
	for _, m := range availableModels {
		available[m] = true
	}

	type tally struct {
		weighted  float64
		weightSum float64
		samples   int
	}
	scores := make(map[string]*tally)

	addView := func(category Category, keyPrefix string, weight float64, keyed bool) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT key, value, confidence, sample_size FROM learning_insights
			WHERE category = ? AND substr(key, 1, ?) = ?`,
			string(category), len(keyPrefix), keyPrefix,
		)
		if err != nil {
			return fmt.Errorf("querying %s insights: %w", category, err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var value, confidence float64
			var sampleSize int
			if err := rows.Scan(&key, &value, &confidence, &sampleSize); err != nil {
				return fmt.Errorf("scanning %s insight: %w", category, err)
			}
			model := key
			if keyed {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) != 2 {
					continue
				}
				model = parts[1]
			}
			if !available[model] {
				continue
			}
			t := scores[model]
			if t == nil {
				t = &tally{}
				scores[model] = t
			}
			t.weighted += value * confidence * weight
			t.weightSum += confidence * weight
			if sampleSize > t.samples {
				t.samples = sampleSize
			}
		}
		return rows.Err()
	}

	if err := addView(CategoryIntentModelMatch, intent+":", 1.0, true); err != nil {
		return Recommendation{}, err
	}
	if err := addView(CategoryComplexityModelMatch, complexityBucket(complexity)+":", 1.0, true); err != nil {
		return Recommendation{}, err
	}
	if err := addView(CategoryModelPerformance, "", modelViewWeight, false); err != nil {
		return Recommendation{}, err
	}

	if len(scores) == 0 {
		return Recommendation{}, nil
	}

	best := ""
	var bestTally *tally
	for model, t := range scores {
		if bestTally == nil || t.weighted > bestTally.weighted {
			best = model
			bestTally = t
		}
	}

	meanValue := 0.0
	if bestTally.weightSum > 0 {
		meanValue = bestTally.weighted / bestTally.weightSum
	}
	coverage := float64(bestTally.samples) / recommendFullSupport
	if coverage > 1.0 {
		coverage = 1.0
	}
	confidence := meanValue * coverage
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Recommendation{ModelKey: best, Confidence: confidence}, nil
}

// Insights returns all stored insights, for inspection and tests.
func (s *Store) Insights(ctx context.Context) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, key, value, confidence, sample_size, last_updated
		FROM learning_insights ORDER BY category, key`)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	var out []Insight
	for rows.Next() {
		var in Insight
		var cat, ts string
		if err := rows.Scan(&cat, &in.Key, &in.Value, &in.Confidence, &in.SampleSize, &ts); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}
		in.Category = Category(cat)
		in.LastUpdated, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Stats returns aggregate figures for the stats endpoint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{SignalCounts: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_events`).Scan(&st.TotalEvents); err != nil {
		return st, fmt.Errorf("counting events: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(explicit_rating) FROM feedback_events WHERE explicit_rating IS NOT NULL`).Scan(&avg); err != nil {
		return st, fmt.Errorf("averaging ratings: %w", err)
	}
	if avg.Valid {
		st.AvgExplicitRating = avg.Float64
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT implicit_signal, COUNT(*) FROM feedback_events GROUP BY implicit_signal`)
	if err != nil {
		return st, fmt.Errorf("counting signals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var signal string
		var count int
		if err := rows.Scan(&signal, &count); err != nil {
			return st, fmt.Errorf("scanning signal count: %w", err)
		}
		st.SignalCounts[signal] = count
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learning_insights`).Scan(&st.TotalInsights); err != nil {
		return st, fmt.Errorf("counting insights: %w", err)
	}

	return st, nil
}
