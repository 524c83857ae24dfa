package classify

import "testing"

func TestKeywordIntentClassifier(t *testing.T) {
	c := NewKeywordIntentClassifier()

	tests := []struct {
		name    string
		message string
		mode    Mode
		want    Intent
	}{
		{name: "greeting", message: "Merhaba", mode: ModeNormal, want: IntentSmallTalk},
		{name: "greeting english", message: "hello", mode: ModeNormal, want: IntentSmallTalk},
		{name: "code keyword", message: "python fonksiyon yazar mısın", mode: ModeNormal, want: IntentCodeHelp},
		{name: "code mode wins", message: "bunu düzelt", mode: ModeCode, want: IntentCodeHelp},
		{name: "question mark", message: "Ankara'nın nüfusu kaç?", mode: ModeNormal, want: IntentQuestion},
		{name: "turkish question particle", message: "yarın yağmur yağacak mı", mode: ModeNormal, want: IntentQuestion},
		{name: "summary", message: "şu metni özetle", mode: ModeNormal, want: IntentSummarize},
		{name: "emotional support beats code", message: "moralim bozuk, python da çalışmıyor", mode: ModeNormal, want: IntentEmotionalSupport},
		{name: "translate", message: "bunu ingilizceye çevir", mode: ModeNormal, want: IntentTranslate},
		{name: "document", message: "yüklediğim dosya ne anlatıyor", mode: ModeNormal, want: IntentDocumentQuestion},
		{name: "friend mode fallback", message: "bugün bir tuhafım", mode: ModeFriend, want: IntentEmotionalSupport},
		{name: "unknown", message: "evet", mode: ModeNormal, want: IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.message, tt.mode); got != tt.want {
				t.Errorf("Classify(%q, %s) = %s, want %s", tt.message, tt.mode, got, tt.want)
			}
		})
	}
}

func TestKeywordEmotionClassifier(t *testing.T) {
	c := NewKeywordEmotionClassifier()

	tests := []struct {
		name          string
		message       string
		wantSentiment Sentiment
		wantEmotion   Emotion
	}{
		{name: "neutral", message: "saat kaç", wantSentiment: SentimentNeutral, wantEmotion: EmotionNeutral},
		{name: "sad", message: "çok üzgünüm bugün", wantSentiment: SentimentNegative, wantEmotion: EmotionSadness},
		{name: "angry", message: "öfkeliyim, delireceğim!!", wantSentiment: SentimentNegative, wantEmotion: EmotionAnger},
		{name: "positive", message: "harika hissediyorum, mükemmel bir gün", wantSentiment: SentimentPositive, wantEmotion: EmotionJoy},
		{name: "anxious", message: "yarınki sınavdan korkuyorum", wantSentiment: SentimentNegative, wantEmotion: EmotionFear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Analyze(tt.message)
			if got.Sentiment != tt.wantSentiment {
				t.Errorf("sentiment = %s, want %s", got.Sentiment, tt.wantSentiment)
			}
			if got.Emotion != tt.wantEmotion {
				t.Errorf("emotion = %s, want %s", got.Emotion, tt.wantEmotion)
			}
			if got.Intensity < 0 || got.Intensity > 1 {
				t.Errorf("intensity %f out of range", got.Intensity)
			}
		})
	}
}

func TestEmotionIntensityCapped(t *testing.T) {
	c := NewKeywordEmotionClassifier()
	got := c.Analyze("üzgünüm, mutsuzum, depresif ve moralim bozuk!!")
	if got.Intensity > 1.0 {
		t.Errorf("intensity %f exceeds 1.0", got.Intensity)
	}
	if got.Intensity == 0 {
		t.Error("expected non-zero intensity for emotional message")
	}
}
