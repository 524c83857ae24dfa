package quality

import (
	"regexp"
	"strings"
)

// hallucinationIndicators mark unsupported claims of recency or
// authority.
var hallucinationIndicators = []*regexp.Regexp{
	regexp.MustCompile(`20(1[5-9]|2[0-9]|3[0-9]) yılında`),
	regexp.MustCompile(`(?i)yakın zamanda yapılan araştırma`),
	regexp.MustCompile(`(?i)bilimsel olarak kanıtlanmıştır`),
	regexp.MustCompile(`(?i)uzmanlar söylüyor`),
	regexp.MustCompile(`(?i)son araştırmalar gösteriyor`),
}

var (
	contradictionPattern = regexp.MustCompile(`(evet|hayır).*\b(ama|ancak|fakat)\b.*(hayır|evet)`)
	numericClaimPattern  = regexp.MustCompile(`\d+%|\d+\s*(milyon|milyar|bin)\b`)
	wordPattern          = regexp.MustCompile(`\p{L}+`)
)

// turkishStopWords are excluded from relevance keyword overlap.
var turkishStopWords = map[string]bool{
	"ve": true, "veya": true, "ama": true, "fakat": true, "çünkü": true,
	"için": true, "bir": true, "bu": true, "şu": true, "o": true,
	"de": true, "da": true, "mi": true, "mı": true, "ile": true,
	"gibi": true, "kadar": true, "daha": true, "en": true, "çok": true,
}

// CoherenceScore breaks down how well an answer holds together.
type CoherenceScore struct {
	Overall      float64
	Relevance    float64
	Consistency  float64
	Factuality   float64
	Completeness float64
	Issues       []string
}

// CoherenceChecker estimates answer coherence from surface signals.
type CoherenceChecker struct{}

// NewCoherenceChecker returns a checker.
func NewCoherenceChecker() *CoherenceChecker {
	return &CoherenceChecker{}
}

// Check scores relevance, internal consistency, factuality and
// completeness, and combines them weighted 0.35/0.25/0.25/0.15.
func (c *CoherenceChecker) Check(response, query string, sources []string) CoherenceScore {
	var issues []string

	relevance := checkRelevance(response, query)
	if relevance < 0.5 {
		issues = append(issues, "answer appears unrelated to the question")
	}

	consistency := checkConsistency(response)
	if consistency < 0.6 {
		issues = append(issues, "answer contradicts itself")
	}

	factuality := checkFactuality(response, sources)
	if factuality < 0.6 {
		issues = append(issues, "possible hallucination")
	}

	completeness := checkCompleteness(response, query)
	if completeness < 0.5 {
		issues = append(issues, "answer looks incomplete")
	}

	overall := relevance*0.35 + consistency*0.25 + factuality*0.25 + completeness*0.15

	return CoherenceScore{
		Overall:      overall,
		Relevance:    relevance,
		Consistency:  consistency,
		Factuality:   factuality,
		Completeness: completeness,
		Issues:       issues,
	}
}

// checkRelevance measures keyword overlap between question and answer.
func checkRelevance(response, query string) float64 {
	queryWords := extractKeywords(query)
	if len(queryWords) == 0 {
		return 0.5
	}
	responseWords := extractKeywords(response)

	responseSet := make(map[string]bool, len(responseWords))
	for _, w := range responseWords {
		responseSet[w] = true
	}

	querySet := make(map[string]bool, len(queryWords))
	common := 0
	for _, w := range queryWords {
		if querySet[w] {
			continue
		}
		querySet[w] = true
		if responseSet[w] {
			common++
		}
	}

	overlap := float64(common) / float64(len(querySet))

	if strings.Contains(query, "?") {
		lower := strings.ToLower(response)
		for _, marker := range []string{"evet", "hayır", "şöyle", "şu şekilde"} {
			if strings.Contains(lower, marker) {
				overlap += 0.2
				break
			}
		}
	}

	return clamp01(overlap)
}

func checkConsistency(response string) float64 {
	score := 1.0

	if contradictionPattern.MatchString(strings.ToLower(response)) {
		score -= 0.3
	}

	seen := make(map[string]bool)
	for _, sent := range strings.Split(response, ".") {
		key := strings.ToLower(strings.TrimSpace(sent))
		if key == "" {
			continue
		}
		if seen[key] {
			score -= 0.2
		}
		seen[key] = true
	}

	if response != "" && !strings.ContainsRune(".!?", rune(response[len(response)-1])) {
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	return score
}

func checkFactuality(response string, sources []string) float64 {
	score := 1.0

	for _, indicator := range hallucinationIndicators {
		if !indicator.MatchString(response) {
			continue
		}
		if len(sources) == 0 {
			score -= 0.4
			continue
		}
		supported := false
		for _, src := range sources {
			if indicator.MatchString(src) {
				supported = true
				break
			}
		}
		if !supported {
			score -= 0.3
		}
	}

	if numericClaimPattern.MatchString(response) && len(sources) == 0 {
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	return score
}

// checkCompleteness expects short answers for short questions and
// longer ones for complex questions.
func checkCompleteness(response, query string) float64 {
	score := 0.5

	wordCount := len(strings.Fields(response))
	queryWords := len(strings.Fields(query))

	expectedMin, expectedMax := 20, 150
	if queryWords >= 10 {
		expectedMin, expectedMax = 50, 300
	}

	switch {
	case wordCount >= expectedMin && wordCount <= expectedMax:
		score += 0.3
	case wordCount < expectedMin:
		score -= 0.2
	case wordCount > expectedMax*2:
		score -= 0.1
	}

	if strings.ContainsAny(response, ".!?") {
		score += 0.2
	}

	return clamp01(score)
}

func extractKeywords(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if turkishStopWords[w] || len([]rune(w)) <= 2 {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
