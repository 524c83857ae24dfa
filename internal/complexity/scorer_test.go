package complexity

import (
	"strings"
	"testing"

	"github.com/warhack811/ai/internal/classify"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		message string
		mode    classify.Mode
		intent  classify.Intent
		want    int
	}{
		{
			name:    "short greeting floors to 1",
			message: "Merhaba",
			mode:    classify.ModeNormal,
			intent:  classify.IntentSmallTalk,
			want:    1,
		},
		{
			name:    "english greeting floors to 1",
			message: "hello, how are you",
			mode:    classify.ModeFriend,
			intent:  classify.IntentSmallTalk,
			want:    1,
		},
		{
			name:    "short plain question",
			message: "saat kaç",
			mode:    classify.ModeNormal,
			intent:  classify.IntentQuestion,
			want:    0,
		},
		{
			name:    "code request with explanation",
			// 9 words, code kw +3, explain kw +2, reasoning (açıkla) +2
			message: "python ile quicksort fonksiyon yazar mısın ve adımları açıkla",
			mode:    classify.ModeCode,
			intent:  classify.IntentCodeHelp,
			want:    10,
		},
		{
			name:    "research mode comparison",
			message: "iki framework karşılaştır",
			mode:    classify.ModeResearch,
			intent:  classify.IntentQuestion,
			want:    6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.message, tt.mode, tt.intent); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreBounds(t *testing.T) {
	// Stress inputs across modes and intents; result must stay in [0,10].
	messages := []string{
		"",
		"Merhaba",
		"neden nasıl açıkla analiz karşılaştır fark avantaj dezavantaj strateji plan çöz",
		strings.Repeat("kelime ", 100) + "kod python algoritma neden? nasıl? ∑ listele",
		"x? y? z?",
	}
	modes := []classify.Mode{
		classify.ModeNormal, classify.ModeFriend, classify.ModeCode,
		classify.ModeCreative, classify.ModeResearch, classify.ModeTeacher,
	}
	intents := []classify.Intent{
		classify.IntentSmallTalk, classify.IntentQuestion, classify.IntentCodeHelp,
		classify.IntentDocumentQuestion, classify.IntentUnknown,
	}

	for _, m := range messages {
		for _, mode := range modes {
			for _, intent := range intents {
				got := Score(m, mode, intent)
				if got < MinScore || got > MaxScore {
					t.Fatalf("Score(%.20q, %s, %s) = %d, out of [0,10]", m, mode, intent, got)
				}
			}
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	msg := "bu algoritmanın karmaşıklığını analiz eder misin?"
	first := Score(msg, classify.ModeResearch, classify.IntentExplain)
	for i := 0; i < 10; i++ {
		if got := Score(msg, classify.ModeResearch, classify.IntentExplain); got != first {
			t.Fatalf("Score() not deterministic: %d != %d", got, first)
		}
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierLight},
		{3, TierLight},
		{4, TierMid},
		{6, TierMid},
		{7, TierHeavy},
		{8, TierHeavy},
		{9, TierReasoning},
		{10, TierReasoning},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score); got != tt.want {
			t.Errorf("TierFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCheaperTier(t *testing.T) {
	if CheaperTier(TierReasoning) != TierHeavy {
		t.Error("reasoning should degrade to heavy")
	}
	if CheaperTier(TierHeavy) != TierMid {
		t.Error("heavy should degrade to mid")
	}
	if CheaperTier(TierMid) != TierLight {
		t.Error("mid should degrade to light")
	}
	if CheaperTier(TierLight) != TierLight {
		t.Error("light should stay light")
	}
}
