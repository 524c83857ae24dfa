package quality

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var validatorMetaTags = regexp.MustCompile(`(?i)\[USER\]|\[ASSISTANT\]|\[INST\]|<\|im_start\|>|<\|im_end\|>`)

const turkishChars = "çğıöşüÇĞİÖŞÜ"

// Validator scores surface quality of an answer in [0,1].
type Validator struct{}

// NewValidator returns a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate scores an answer. Anything under 10 characters is invalid
// with score 0. The score sums length, Turkish-character ratio,
// sentence structure, absence of template artifacts and absence of
// repetition; 0.5 is the validity threshold.
func (v *Validator) Validate(output string) (bool, float64) {
	trimmed := strings.TrimSpace(output)
	if utf8.RuneCountInString(trimmed) < 10 {
		return false, 0.0
	}

	score := 0.0

	length := utf8.RuneCountInString(output)
	switch {
	case length >= 50 && length <= 3000:
		score += 0.2
	case length >= 10 && length < 50:
		score += 0.1
	case length > 3000:
		score += 0.15
	}

	score += turkishCharRatio(output) * 0.3

	if strings.ContainsAny(output, ".!?") {
		score += 0.2
	}

	if !validatorMetaTags.MatchString(output) {
		score += 0.15
	}

	if !hasRepeatedSentence(output) {
		score += 0.15
	}

	return score >= 0.5, score
}

// turkishCharRatio rewards Turkish text; 20+ Turkish letters saturate
// at 1. No Turkish letters scores 0.5 since English answers are
// acceptable.
func turkishCharRatio(text string) float64 {
	count := 0
	for _, r := range text {
		if strings.ContainsRune(turkishChars, r) {
			count++
		}
	}
	if count == 0 {
		return 0.5
	}
	ratio := float64(count) / 20.0
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}

func hasRepeatedSentence(text string) bool {
	sentences := sentenceSplit.Split(text, -1)
	if len(sentences) < 2 {
		return false
	}
	seen := make(map[string]bool)
	for _, sent := range sentences {
		key := strings.ToLower(strings.TrimSpace(sent))
		if key == "" {
			continue
		}
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}
