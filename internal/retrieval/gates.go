package retrieval

import (
	"strings"

	"github.com/warhack811/ai/internal/classify"
)

var personalKeywords = []string{"beni", "ben", "benim", "bana", "hatırla", "hakkımda"}

var continuationMarkers = []string{
	"peki", "ee", "o zaman", "ayrıca", "bir de",
	"onun için", "bunun üzerine", "daha önce",
}

// şiir still benefits from prior turns, so the history gate uses the
// shorter list.
var creativeKeywords = []string{"fıkra", "şaka", "hikaye", "masal", "şiir"}
var creativeHistoryKeywords = []string{"fıkra", "şaka", "hikaye", "masal"}

// IncludeProfile reports whether the user profile belongs in the prompt
// context: only for personal queries and profile updates.
func IncludeProfile(query string, intent classify.Intent) bool {
	lower := strings.ToLower(query)
	for _, kw := range personalKeywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	return intent == classify.IntentProfileUpdate
}

// IncludeHistory reports whether prior conversation belongs in the
// prompt context. Short small talk and fresh creative asks skip it;
// continuation phrasing always keeps it.
func IncludeHistory(query string, intent classify.Intent) bool {
	lower := strings.ToLower(query)
	if intent == classify.IntentSmallTalk && len(strings.Fields(query)) < 10 {
		return false
	}
	for _, marker := range continuationMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, kw := range creativeHistoryKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// IncludeRetrieval reports whether document and web retrieval should run
// at all. Document questions and research mode always retrieve; small
// talk and creative asks never do.
func IncludeRetrieval(query string, intent classify.Intent, mode classify.Mode) bool {
	if intent == classify.IntentDocumentQuestion {
		return true
	}
	if mode == classify.ModeResearch {
		return true
	}
	if intent == classify.IntentSmallTalk {
		return false
	}
	lower := strings.ToLower(query)
	for _, kw := range creativeKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	return true
}

// containsWord matches kw as a whole word within lower.
func containsWord(lower, kw string) bool {
	for _, w := range strings.Fields(lower) {
		if strings.Trim(w, ".,!?;:") == kw {
			return true
		}
	}
	return false
}
