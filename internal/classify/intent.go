package classify

import (
	"regexp"
	"strings"
)

// questionSuffix matches Turkish interrogative particles as standalone words.
var questionSuffix = regexp.MustCompile(`\b(mı|mi|mu|mü)\b`)

var (
	codeKeywords = []string{
		"kod yaz", "python", "javascript", "react", "fastapi", "golang",
		"hata alıyorum", "error", "exception", "fonksiyon", "function",
		"class", "metot", "algoritma", "algorithm", "debug",
	}
	summaryKeywords = []string{
		"özetle", "özet geç", "özet çıkar", "kısaca anlat", "summarize", "tldr",
	}
	explainKeywords = []string{
		"açıkla", "detaylı anlat", "nedir", "anlatır mısın", "explain",
	}
	translateKeywords = []string{
		"çevir", "translate", "ingilizceye çevir", "türkçeye çevir",
	}
	supportKeywords = []string{
		"moralim bozuk", "canım sıkkın", "üzgünüm", "çok kötüyüm",
		"kendimi kötü hissediyorum", "yalnız hissediyorum", "bunalım",
		"stresliyim", "i feel terrible", "i'm sad",
	}
	profileKeywords = []string{
		"beni tanı", "profilimi", "hakkımda", "benimle ilgili", "remember me",
	}
	documentKeywords = []string{
		"yüklediğim dosya", "yüklediğim doküman", "pdf", "belgede", "dokümanda",
		"in the document",
	}
	smallTalkKeywords = []string{
		"merhaba", "selam", "naber", "nasılsın", "nasilsin", "iyi misin",
		"günaydın", "iyi geceler", "iyi akşamlar", "hello", "hi there",
		"how are you",
	}
	questionWords = []string{
		"nedir", "nasıl", "kimdir", "nerede", "ne zaman", "what", "how",
		"why", "when", "where",
	}
)

// KeywordIntentClassifier labels messages with keyword and pattern rules.
//
// The rules are ordered most-specific first; the first match wins. Mode acts
// as a tie-breaker: code mode implies code help, friend mode turns
// unclassified messages into emotional support.
type KeywordIntentClassifier struct{}

// NewKeywordIntentClassifier creates a keyword-rule intent classifier.
func NewKeywordIntentClassifier() *KeywordIntentClassifier {
	return &KeywordIntentClassifier{}
}

// Classify returns the inferred intent for a message.
func (c *KeywordIntentClassifier) Classify(message string, mode Mode) Intent {
	text := strings.ToLower(strings.TrimSpace(message))

	switch {
	case containsAny(text, supportKeywords):
		return IntentEmotionalSupport
	case containsAny(text, translateKeywords):
		return IntentTranslate
	case containsAny(text, codeKeywords) || mode == ModeCode:
		return IntentCodeHelp
	case containsAny(text, summaryKeywords):
		return IntentSummarize
	case containsAny(text, explainKeywords):
		return IntentExplain
	case containsAny(text, documentKeywords):
		return IntentDocumentQuestion
	case containsAny(text, profileKeywords):
		return IntentProfileUpdate
	case containsAny(text, smallTalkKeywords):
		return IntentSmallTalk
	case looksLikeQuestion(text):
		return IntentQuestion
	case mode == ModeFriend:
		return IntentEmotionalSupport
	default:
		return IntentUnknown
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

func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	for _, w := range questionWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return questionSuffix.MatchString(text)
}
