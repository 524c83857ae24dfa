package learning

import "strings"

// clarificationPhrases mark a follow-up asking to re-explain the
// previous answer.
var clarificationPhrases = []string{
	"anlamadım",
	"ne demek",
	"açıklar mısın",
	"daha basit",
	"tekrar anlatır mısın",
	"i don't understand",
	"what do you mean",
	"can you explain",
	"more simply",
}

// continuationPhrases mark a follow-up that builds on the previous
// answer rather than questioning it.
var continuationPhrases = []string{
	"peki",
	"ee",
	"o zaman",
	"ayrıca",
	"devam",
	"and then",
	"what about",
	"also",
}

// SignalClassifier derives an implicit feedback signal for the previous
// assistant answer from the user's next message.
type SignalClassifier struct {
	similarityThreshold float64
}

// NewSignalClassifier returns a classifier using the given Jaccard
// similarity threshold for retry detection.
func NewSignalClassifier(similarityThreshold float64) *SignalClassifier {
	if similarityThreshold <= 0 || similarityThreshold > 1 {
		similarityThreshold = DefaultConfig().SimilarityThreshold
	}
	return &SignalClassifier{similarityThreshold: similarityThreshold}
}

// Classify maps the new user message against the previous one. An empty
// previous message means there was nothing to give feedback on.
func (c *SignalClassifier) Classify(current, previous string) Signal {
	if strings.TrimSpace(previous) == "" {
		return SignalNewConversation
	}

	if jaccardSimilarity(current, previous) > c.similarityThreshold {
		return SignalRetry
	}

	lower := strings.ToLower(current)
	for _, phrase := range clarificationPhrases {
		if strings.Contains(lower, phrase) {
			return SignalClarification
		}
	}
	for _, phrase := range continuationPhrases {
		if strings.HasPrefix(lower, phrase) {
			return SignalContinuation
		}
	}

	return SignalAccepted
}

// jaccardSimilarity compares the word sets of two messages. Identical
// sets score 1, disjoint sets 0. Two empty messages count as identical.
func jaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
