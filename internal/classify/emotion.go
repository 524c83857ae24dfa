package classify

import "strings"

var (
	positiveWords = []string{
		"mutluyum", "harika", "süper", "iyi hissediyorum", "mükemmel",
		"şahane", "çok iyiyim", "heyecanlıyım", "great", "awesome", "happy",
	}
	negativeWords = []string{
		"kötüyüm", "berbat", "rezalet", "hiç iyi değilim", "sıkıldım",
		"bıktım", "tükendim", "terrible", "awful",
	}
	sadWords = []string{
		"üzgün", "üzgünüm", "canım sıkkın", "moralim bozuk", "mutsuzum",
		"depresif", "sad", "depressed",
	}
	angryWords = []string{
		"sinirliyim", "öfkeli", "öfkeliyim", "çok gerginim", "delireceğim",
		"angry", "furious",
	}
	fearWords = []string{
		"kaygılıyım", "endişeliyim", "korkuyorum", "panik", "anxious",
		"scared", "worried",
	}
)

// KeywordEmotionClassifier estimates sentiment and dominant emotion from
// valence word lists plus punctuation emphasis.
type KeywordEmotionClassifier struct{}

// NewKeywordEmotionClassifier creates a keyword-rule emotion classifier.
func NewKeywordEmotionClassifier() *KeywordEmotionClassifier {
	return &KeywordEmotionClassifier{}
}

// Analyze returns the emotional reading of a message.
//
// Intensity starts from the strongest matching emotion class and is bumped
// by exclamation emphasis, capped at 1.0. A message with no emotional
// vocabulary yields a neutral result with zero intensity.
func (c *KeywordEmotionClassifier) Analyze(message string) EmotionResult {
	text := strings.ToLower(message)

	scores := map[Emotion]int{
		EmotionSadness: countMatches(text, sadWords),
		EmotionAnger:   countMatches(text, angryWords),
		EmotionFear:    countMatches(text, fearWords),
		EmotionJoy:     countMatches(text, positiveWords),
	}

	emotion := EmotionNeutral
	best := 0
	for _, e := range []Emotion{EmotionSadness, EmotionAnger, EmotionFear, EmotionJoy} {
		if scores[e] > best {
			emotion = e
			best = scores[e]
		}
	}

	pos := countMatches(text, positiveWords)
	neg := countMatches(text, negativeWords) + scores[EmotionSadness] + scores[EmotionAnger] + scores[EmotionFear]

	sentiment := SentimentNeutral
	if pos > neg && pos > 0 {
		sentiment = SentimentPositive
	} else if neg > pos {
		sentiment = SentimentNegative
	}

	intensity := float64(best) * 0.3
	if strings.Contains(message, "!!") {
		intensity += 0.2
	}
	if intensity > 1.0 {
		intensity = 1.0
	}

	return EmotionResult{
		Sentiment: sentiment,
		Emotion:   emotion,
		Intensity: intensity,
	}
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
