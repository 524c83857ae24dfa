package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterDisabledPassesThrough(t *testing.T) {
	f := NewKeywordFilter(Config{Enabled: false})
	out, level := f.Apply("intihar hakkında bir cümle")
	assert.Equal(t, "intihar hakkında bir cümle", out)
	assert.Equal(t, LevelOK, level)
}

func TestFilterLevels(t *testing.T) {
	f := NewKeywordFilter(Config{Enabled: true, SoftGuardrails: true})

	tests := []struct {
		name      string
		answer    string
		wantLevel Level
		annotated bool
	}{
		{"clean answer", "Go dilinde map kullanımı şöyledir.", LevelOK, false},
		{"self harm", "Konu intihar düşünceleri üzerineydi.", LevelRisky, true},
		{"health", "Doktor yerine bana sorabilirsin tabii.", LevelSensitive, true},
		{"finance", "Bu yatırım garanti kazanç sağlar.", LevelSensitive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, level := f.Apply(tt.answer)
			assert.Equal(t, tt.wantLevel, level)
			if tt.annotated {
				assert.Greater(t, len(out), len(tt.answer))
			} else {
				assert.Equal(t, tt.answer, out)
			}
		})
	}
}

func TestFilterNoGuardrailsStillFlags(t *testing.T) {
	f := NewKeywordFilter(Config{Enabled: true, SoftGuardrails: false})
	out, level := f.Apply("Konu intihar düşünceleri üzerineydi.")
	assert.Equal(t, LevelRisky, level)
	assert.Equal(t, "Konu intihar düşünceleri üzerineydi.", out)
}
