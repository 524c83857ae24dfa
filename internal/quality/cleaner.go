// Package quality cleans raw model output and scores it against the
// question before an answer is accepted.
package quality

import (
	"regexp"
	"strings"
)

// metaTagPatterns match template artifacts models leak into output.
var metaTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[/?(?:USER|ASSISTANT|INST|SYSTEM)\]`),
	regexp.MustCompile(`(?s)<\|im_start\|>.*?<\|im_end\|>`),
	regexp.MustCompile(`<\|(?:system|user|assistant|end)\|>`),
	regexp.MustCompile(`(?i)###\s*(?:User|Assistant|System):?\s*`),
	regexp.MustCompile(`</?s>`),
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
	multiNewline  = regexp.MustCompile(`\n{3,}`)
	multiSpace    = regexp.MustCompile(` {2,}`)
)

// Cleaner normalizes raw completions stage by stage.
type Cleaner struct{}

// NewCleaner returns a cleaner.
func NewCleaner() *Cleaner {
	return &Cleaner{}
}

// Clean removes template artifacts, repeated sentences, a trailing
// half-finished sentence and stray whitespace, and closes an unclosed
// code fence.
func (c *Cleaner) Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := removeMetaTags(raw)
	text = fixRepetition(text)
	text = trimIncomplete(text)
	text = cleanWhitespace(text)
	text = closeCodeFence(text)
	return strings.TrimSpace(text)
}

func removeMetaTags(text string) string {
	for _, p := range metaTagPatterns {
		text = p.ReplaceAllString(text, "")
	}
	return text
}

// fixRepetition drops sentences that already appeared. Skipped for
// fenced output: rejoining would mangle code.
func fixRepetition(text string) string {
	if strings.Contains(text, "```") {
		return text
	}

	sentences := sentenceSplit.Split(text, -1)
	if len(sentences) < 2 {
		return text
	}

	seen := make(map[string]bool)
	var unique []string
	for _, sent := range sentences {
		key := strings.ToLower(strings.TrimSpace(sent))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, strings.TrimSuffix(strings.TrimSpace(sent), "."))
	}
	if len(unique) == 0 {
		return ""
	}

	joined := strings.Join(unique, ". ")
	// a trailing fragment without punctuation stays open so the
	// incomplete-sentence trim can see it
	if endsWithPunctuation(text) {
		joined += "."
	}
	return joined
}

func endsWithPunctuation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	return strings.ContainsAny(trimmed[len(trimmed)-1:], ".!?")
}

// trimIncomplete cuts a trailing unfinished sentence, but only when at
// least half the text survives the cut.
func trimIncomplete(text string) string {
	if text == "" {
		return text
	}
	if strings.ContainsRune(".!?", rune(text[len(text)-1])) {
		return text
	}

	last := -1
	for _, p := range []string{".", "!", "?"} {
		if i := strings.LastIndex(text, p); i > last {
			last = i
		}
	}
	if last > len(text)/2 {
		return text[:last+1]
	}
	return text
}

func cleanWhitespace(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}

func closeCodeFence(text string) string {
	if strings.Count(text, "```")%2 != 0 {
		return text + "\n```"
	}
	return text
}
