// Package prompt renders system and user prompts for generation. The
// chat endpoint applies model-specific chat templates itself, so
// rendering only decides persona, mode instructions and context layout.
package prompt

import (
	"strings"

	"github.com/warhack811/ai/internal/classify"
)

// Renderer produces the prompt pair for one generation call.
type Renderer interface {
	Render(mode classify.Mode, message, context string) (system, user string)
}

const basePersona = `Sen deneyimli bir Türk danışmansın. İnsansı, düşünceli ve yardımseversin.

YAP:
- Doğal günlük Türkçe kullan
- Bağlamı anla, önceki konuşmaları hatırla
- Düşünceli ve mantıklı cevaplar ver
- Emin değilsen "Bilmiyorum ama..." de

ASLA YAPMA:
- "Ben bir AI asistanıyım" deme
- "Size nasıl yardımcı olabilirim?" gibi klişeler kullanma
- [USER], [ASSISTANT] gibi taglar ekleme
- Bilmediğini uydurma`

var modeInstructions = map[classify.Mode]string{
	classify.ModeNormal: `MOD: Normal Asistan
- Yardımcı ve samimi ol
- Dengeli detay ver, ne çok kısa ne çok uzun
- Profesyonel ama sıcak bir dil kullan`,

	classify.ModeResearch: `MOD: Araştırma Asistanı
- Detaylı ve yapılandırılmış cevaplar ver
- Varsa kaynaklardan bahset
- Birkaç paragraf halinde açıkla, örnek ve kanıt kullan`,

	classify.ModeCreative: `MOD: Yaratıcı Asistan
- Yaratıcı ve ilginç ol
- Metaforlar ve benzetmeler yap
- Eğlenceli bir dil kullan, sıradan cevaplardan kaçın`,

	classify.ModeCode: `MOD: Kod Asistanı
- Teknik ve kesin ol
- Önce kısa açıklama, sonra kod bloğu ver
- Gerektiğinde algoritma karmaşıklığını belirt
- Adım adım açıkla`,

	classify.ModeFriend: `MOD: Arkadaş
- Çok samimi ve sıcak ol
- "Sana", "senin" kullan, "size" değil
- Destekleyici ol, rahat ve günlük dil kullan`,

	classify.ModeTeacher: `MOD: Türkçe Öğretmen
- Eğitici ve nazik ol
- Hataları kırmadan düzelt
- Açıklarken örnekler ver, dilbilgisini basit anlat
- Cesaretlendirici ol`,
}

// ConsultantRenderer is the default prompt renderer.
type ConsultantRenderer struct{}

// NewConsultantRenderer returns the default renderer.
func NewConsultantRenderer() *ConsultantRenderer {
	return &ConsultantRenderer{}
}

// Render builds the system and user prompts. Context, when present, is
// prepended to the user message under a marked section.
func (r *ConsultantRenderer) Render(mode classify.Mode, message, context string) (string, string) {
	instruction, ok := modeInstructions[mode]
	if !ok {
		instruction = modeInstructions[classify.ModeNormal]
	}
	system := basePersona + "\n\n" + instruction

	context = strings.TrimSpace(context)
	if context == "" {
		return system, message
	}

	var b strings.Builder
	b.WriteString("[Bağlam]\n")
	b.WriteString(context)
	b.WriteString("\n\n[Soru]\n")
	b.WriteString(message)
	return system, b.String()
}
