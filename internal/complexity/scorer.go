// Package complexity estimates how much reasoning a query needs on a 0-10
// scale and maps scores to backend tiers.
//
// Scoring is a pure additive heuristic with no I/O: token-count buckets,
// per-mode bias, keyword-class bonuses, a multi-question bump and an
// intent adjustment. Short greetings short-circuit to the floor score.
package complexity

import (
	"strings"

	"github.com/warhack811/ai/internal/classify"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 10
)

// Tier groups backends by capability and cost.
type Tier string

const (
	TierLight     Tier = "light"
	TierMid       Tier = "mid"
	TierHeavy     Tier = "heavy"
	TierReasoning Tier = "reasoning"
)

var (
	codeKeywords = []string{
		"kod", "code", "program", "fonksiyon", "function", "class", "sınıf",
		"python", "javascript", "java", "algoritma", "algorithm", "debug",
		"hata", "error",
	}
	explainKeywords = []string{"açıkla", "explain", "neden", "why"}
	reasoningKeywords = []string{
		"neden", "why", "nasıl", "how", "açıkla", "explain", "analiz",
		"analyze", "karşılaştır", "compare", "fark", "difference", "avantaj",
		"dezavantaj", "pros", "cons", "strateji", "strategy", "plan", "çöz",
		"solve",
	}
	listKeywords = []string{"listele", "list", "enumerate", "madde", "örnekler"}
	greetingKeywords = []string{
		"merhaba", "selam", "hello", "hi", "hey", "günaydın", "iyi günler",
		"nasılsın", "how are you", "naber",
	}
	mathRunes = []rune{'∫', '∑', 'π', '√', '≈', '≤', '≥'}
)

var modeBias = map[classify.Mode]int{
	classify.ModeNormal:   0,
	classify.ModeFriend:   0,
	classify.ModeCode:     3,
	classify.ModeCreative: 2,
	classify.ModeResearch: 4,
	classify.ModeTeacher:  2,
}

var intentAdjustment = map[classify.Intent]int{
	classify.IntentSmallTalk:        -2,
	classify.IntentQuestion:         0,
	classify.IntentTaskRequest:      1,
	classify.IntentExplain:          2,
	classify.IntentCodeHelp:         3,
	classify.IntentSummarize:        2,
	classify.IntentTranslate:        1,
	classify.IntentWebSearch:        2,
	classify.IntentDocumentQuestion: 3,
}

// Score rates a message 0-10. Higher means more reasoning or detail needed.
func Score(message string, mode classify.Mode, intent classify.Intent) int {
	score := 0
	lower := strings.ToLower(message)
	wordCount := len(strings.Fields(message))

	// Greeting short-circuit: short small talk never needs a capable model.
	if wordCount < 10 && containsAny(lower, greetingKeywords) {
		return 1
	}

	switch {
	case wordCount < 5:
	case wordCount < 15:
		score += 2
	case wordCount < 30:
		score += 4
	default:
		score += 6
	}

	score += modeBias[mode]

	if containsAny(lower, codeKeywords) {
		score += 3
		if containsAny(lower, explainKeywords) {
			score += 2
		}
	}

	reasoningHits := 0
	for _, kw := range reasoningKeywords {
		if strings.Contains(lower, kw) {
			reasoningHits++
		}
	}
	score += min(reasoningHits*2, 4)

	if strings.Count(message, "?") > 1 {
		score += 2
	}

	if containsMathSymbol(message) {
		score += 2
	}

	if containsAny(lower, listKeywords) {
		score++
	}

	score += intentAdjustment[intent]

	return clamp(score, MinScore, MaxScore)
}

// TierFor maps a complexity score to a backend tier.
func TierFor(score int) Tier {
	switch {
	case score <= 3:
		return TierLight
	case score <= 6:
		return TierMid
	case score <= 8:
		return TierHeavy
	default:
		return TierReasoning
	}
}

// CheaperTier returns the next tier down, or TierLight at the bottom.
func CheaperTier(t Tier) Tier {
	switch t {
	case TierReasoning:
		return TierHeavy
	case TierHeavy:
		return TierMid
	default:
		return TierLight
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func containsMathSymbol(text string) bool {
	for _, r := range text {
		for _, m := range mathRunes {
			if r == m {
				return true
			}
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
