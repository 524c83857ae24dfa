// Package safety applies a soft guardrail pass over finished answers.
// It annotates risky content with advisory notes instead of blocking.
package safety

import "strings"

// Level classifies how sensitive an answer is.
type Level string

const (
	LevelOK        Level = "ok"
	LevelSensitive Level = "sensitive"
	LevelRisky     Level = "risky"
)

// Config holds safety filter configuration.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// SoftGuardrails appends advisory notes to flagged answers.
	// Flagging still happens when false; only the note is skipped.
	SoftGuardrails bool `koanf:"soft_guardrails"`
}

// DefaultConfig returns the defaults used in production.
func DefaultConfig() Config {
	return Config{Enabled: false, SoftGuardrails: true}
}

// Filter inspects an answer and optionally annotates it.
type Filter interface {
	Apply(answer string) (string, Level)
}

var selfHarmKeywords = []string{
	"intihar", "kendimi öldürmek", "yaşamak istemiyorum", "bıçaklamak",
}

var healthRiskKeywords = []string{
	"ilaç dozunu artırayım", "doktor yerine", "tıbbi tavsiye",
}

var financeRiskKeywords = []string{
	"tüm paramı yatırayım", "tüm paramı basayım", "garanti kazanç", "kesin kazanırım",
}

const (
	selfHarmNote = "\n\nNot: Eğer kendine zarar verme düşüncelerin varsa, lütfen güvendiğin bir yakınından veya bir uzmandan destek al. Ben yardımcı olmaya çalışırım ama gerçek hayattaki destek çok daha önemli."
	healthNote   = "\n\nTıbbi uyarı: Sağlıkla ilgili konularda en doğru karar için mutlaka bir doktora veya sağlık profesyoneline danışmalısın. Benim verdiğim bilgiler genel niteliktedir."
	financeNote  = "\n\nFinansal uyarı: Tüm paranı tek bir yere yatırmak ciddi risk taşır. Lütfen detaylı araştırma yapmadan ve gerekirse bir uzmana danışmadan büyük kararlar verme."
)

// KeywordFilter is the default keyword-based soft filter.
type KeywordFilter struct {
	cfg Config
}

// NewKeywordFilter builds the default filter.
func NewKeywordFilter(cfg Config) *KeywordFilter {
	return &KeywordFilter{cfg: cfg}
}

// Apply checks the answer against the risk keyword lists. Disabled
// filters pass everything through as LevelOK.
func (f *KeywordFilter) Apply(answer string) (string, Level) {
	if !f.cfg.Enabled {
		return answer, LevelOK
	}

	lower := strings.ToLower(answer)

	switch {
	case containsAny(lower, selfHarmKeywords):
		if f.cfg.SoftGuardrails {
			return answer + selfHarmNote, LevelRisky
		}
		return answer, LevelRisky
	case containsAny(lower, healthRiskKeywords):
		if f.cfg.SoftGuardrails {
			return answer + healthNote, LevelSensitive
		}
		return answer, LevelSensitive
	case containsAny(lower, financeRiskKeywords):
		if f.cfg.SoftGuardrails {
			return answer + financeNote, LevelSensitive
		}
		return answer, LevelSensitive
	}

	return answer, LevelOK
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
