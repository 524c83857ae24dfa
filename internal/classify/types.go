// Package classify provides lightweight heuristic classifiers for user
// messages: intent and emotion.
//
// Classifiers sit behind narrow interfaces so a model-based implementation
// can replace the keyword heuristics without touching the pipeline.
package classify

// Mode is the conversation mode requested by the client.
type Mode string

const (
	ModeNormal   Mode = "normal"
	ModeFriend   Mode = "friend"
	ModeCode     Mode = "code"
	ModeCreative Mode = "creative"
	ModeResearch Mode = "research"
	ModeTeacher  Mode = "teacher"
)

// ParseMode maps a client-supplied mode string to a known Mode,
// falling back to ModeNormal for anything unrecognized.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeFriend, ModeCode, ModeCreative, ModeResearch, ModeTeacher:
		return Mode(s)
	default:
		return ModeNormal
	}
}

// Intent is the inferred purpose of a user message.
type Intent string

const (
	IntentSmallTalk        Intent = "small_talk"
	IntentQuestion         Intent = "question"
	IntentTaskRequest      Intent = "task_request"
	IntentExplain          Intent = "explain"
	IntentCodeHelp         Intent = "code_help"
	IntentSummarize        Intent = "summarize"
	IntentTranslate        Intent = "translate"
	IntentWebSearch        Intent = "web_search"
	IntentDocumentQuestion Intent = "document_question"
	IntentEmotionalSupport Intent = "emotional_support"
	IntentProfileUpdate    Intent = "profile_update"
	IntentUnknown          Intent = "unknown"
)

// Sentiment is the coarse polarity of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Emotion is the dominant emotion detected in a message.
type Emotion string

const (
	EmotionJoy     Emotion = "joy"
	EmotionSadness Emotion = "sadness"
	EmotionAnger   Emotion = "anger"
	EmotionFear    Emotion = "fear"
	EmotionNeutral Emotion = "neutral"
)

// IntentClassifier labels a message with an intent.
type IntentClassifier interface {
	Classify(message string, mode Mode) Intent
}

// EmotionResult is the output of emotion analysis.
type EmotionResult struct {
	Sentiment Sentiment
	Emotion   Emotion

	// Intensity is in [0,1]; 0 means no emotional charge detected.
	Intensity float64
}

// EmotionClassifier analyzes the emotional content of a message.
type EmotionClassifier interface {
	Analyze(message string) EmotionResult
}
