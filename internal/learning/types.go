// Package learning implements the feedback-driven routing store: an
// append-only event log, a derived insight table recomputed from it, and
// the read path that recommends backends for future requests.
//
// Insights are always rebuildable from the event log; the insight table is
// a cache of aggregates, upserted per (category, key), never appended.
package learning

import (
	"errors"
	"time"
)

// Store errors.
var (
	ErrEventNotFound  = errors.New("feedback event not found")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrEmptyUserID    = errors.New("user ID cannot be empty")
	ErrEmptySessionID = errors.New("session ID cannot be empty")
	ErrEmptyModelKey  = errors.New("model key cannot be empty")
)

// Signal is the implicit satisfaction reading inferred from conversational
// behavior when no explicit rating exists.
type Signal string

const (
	// SignalRetry means the user re-asked effectively the same question.
	SignalRetry Signal = "retry"

	// SignalClarification means the user asked for the answer to be
	// explained or simplified.
	SignalClarification Signal = "clarification"

	// SignalContinuation means the user kept going on the same topic.
	SignalContinuation Signal = "continuation"

	// SignalAccepted means the user moved on; the answer presumably landed.
	SignalAccepted Signal = "accepted"

	// SignalNewConversation means there was no prior turn to judge against.
	SignalNewConversation Signal = "new_conversation"
)

// Category identifies a derived insight view.
type Category string

const (
	CategoryModelPerformance     Category = "model_performance"
	CategoryIntentModelMatch     Category = "intent_model_match"
	CategoryComplexityModelMatch Category = "complexity_model_match"
	CategorySpeedPreference      Category = "speed_preference"
)

// FeedbackEvent is one observed outcome of a generated answer.
//
// Events are immutable once written except ExplicitRating, which can be
// back-filled later keyed on (UserID, MessageID).
type FeedbackEvent struct {
	UserID    string
	SessionID string
	MessageID string
	Query     string
	Response  string
	ModelUsed string

	// ExplicitRating is 1-5 when the user rated the answer, 0 otherwise.
	ExplicitRating int
	Signal         Signal

	Intent         string
	Mode           string
	Complexity     int
	ResponseTimeMS float64
	Timestamp      time.Time
}

// Insight is a derived, confidence-weighted statistic biasing routing.
type Insight struct {
	Category Category
	Key      string

	// Value is the normalized mean outcome in [0,1].
	Value float64

	// Confidence grows with sample size: min(1, n/100).
	Confidence float64

	SampleSize  int
	LastUpdated time.Time
}

// Recommendation is the read-path output for the router.
type Recommendation struct {
	ModelKey   string
	Confidence float64
}

// Stats summarizes the store for the stats endpoint.
type Stats struct {
	TotalEvents       int            `json:"total_events"`
	AvgExplicitRating float64        `json:"avg_explicit_rating"`
	SignalCounts      map[string]int `json:"signal_counts"`
	TotalInsights     int            `json:"total_insights"`
}

// ordinalScore maps an implicit signal to the 1-5 outcome scale used when
// no explicit rating is present.
func ordinalScore(s Signal) int {
	switch s {
	case SignalAccepted:
		return 5
	case SignalContinuation:
		return 4
	case SignalClarification:
		return 2
	case SignalRetry:
		return 1
	default:
		return 3
	}
}

// complexityBucket coarsens a 0-10 score into the bucket used for the
// complexity-model view.
func complexityBucket(complexity int) string {
	switch {
	case complexity <= 3:
		return "low"
	case complexity <= 6:
		return "medium"
	default:
		return "high"
	}
}
