// Package redact masks secrets and personal identifiers in
// conversation text before it reaches persistent storage. Stored turns
// feed history context and learning, neither of which needs the raw
// values.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule is one detection pattern. Keywords, when present, gate the
// pattern: the regexp only runs if a keyword appears in the content.
type Rule struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Pattern     string   `koanf:"pattern"`
	Keywords    []string `koanf:"keywords"`
}

// Config holds redaction configuration.
type Config struct {
	Enabled bool `koanf:"enabled"`

	// RedactionString replaces each detected span.
	RedactionString string `koanf:"redaction_string"`

	// Rules override the built-in set when non-empty.
	Rules []Rule `koanf:"rules"`
}

// DefaultRules covers API credentials plus the identifiers Turkish
// users paste most often.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "openai-api-key",
			Description: "OpenAI-style API key",
			Pattern:     `sk-[A-Za-z0-9_-]{20,}`,
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `gh[pousr]_[A-Za-z0-9]{36,}`,
		},
		{
			ID:          "aws-access-key",
			Description: "AWS access key id",
			Pattern:     `AKIA[0-9A-Z]{16}`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer token in a header",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9._\-]{16,}`,
			Keywords:    []string{"bearer", "authorization"},
		},
		{
			ID:          "iban",
			Description: "Turkish IBAN",
			Pattern:     `TR\d{2}(?:\s?\d{4}){5}\s?\d{2}`,
		},
		{
			ID:          "tckn",
			Description: "Turkish national id number",
			Pattern:     `\b[1-9]\d{10}\b`,
			Keywords:    []string{"tc", "kimlik", "tckn"},
		},
		{
			ID:          "phone",
			Description: "Turkish phone number",
			Pattern:     `(?:\+90|0)\s?5\d{2}\s?\d{3}\s?\d{2}\s?\d{2}`,
		},
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
		},
	}
}

// Finding is one detected span.
type Finding struct {
	RuleID     string
	StartIndex int
	EndIndex   int
}

// Result is the outcome of one Redact call.
type Result struct {
	Redacted string
	Findings []Finding
}

// Redactor masks sensitive spans in text.
type Redactor interface {
	Redact(content string) Result
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// KeywordRedactor is the default implementation using regexp rules with
// keyword prefiltering.
type KeywordRedactor struct {
	enabled     bool
	replacement string
	rules       []compiledRule
}

// New compiles the configured rules. A missing rule set falls back to
// DefaultRules, a missing replacement to "[GİZLİ]".
func New(cfg Config) (*KeywordRedactor, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	replacement := cfg.RedactionString
	if replacement == "" {
		replacement = "[GİZLİ]"
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule missing id")
		}
		p, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling rule %s: %w", r.ID, err)
		}
		lowered := make([]string, len(r.Keywords))
		for i, kw := range r.Keywords {
			lowered[i] = strings.ToLower(kw)
		}
		compiled = append(compiled, compiledRule{id: r.ID, pattern: p, keywords: lowered})
	}

	return &KeywordRedactor{
		enabled:     cfg.Enabled,
		replacement: replacement,
		rules:       compiled,
	}, nil
}

type span struct {
	start, end int
	ruleID     string
}

// Redact masks all rule matches. Overlapping matches are merged before
// replacement so spans never splice into each other.
func (r *KeywordRedactor) Redact(content string) Result {
	if !r.enabled || content == "" {
		return Result{Redacted: content}
	}

	lowered := strings.ToLower(content)

	var spans []span
	var findings []Finding
	for _, rule := range r.rules {
		if len(rule.keywords) > 0 && !containsAny(lowered, rule.keywords) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, span{start: m[0], end: m[1], ruleID: rule.id})
			findings = append(findings, Finding{RuleID: rule.id, StartIndex: m[0], EndIndex: m[1]})
		}
	}

	if len(spans) == 0 {
		return Result{Redacted: content}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := mergeSpans(spans)

	// Replace back to front so earlier indexes stay valid.
	redacted := content
	for i := len(merged) - 1; i >= 0; i-- {
		s := merged[i]
		redacted = redacted[:s.start] + r.replacement + redacted[s.end:]
	}

	return Result{Redacted: redacted, Findings: findings}
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// mergeSpans merges overlapping or adjacent spans. Input must be sorted
// by start ascending.
func mergeSpans(spans []span) []span {
	merged := []span{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			if curr.end > last.end {
				last.end = curr.end
			}
		} else {
			merged = append(merged, curr)
		}
	}
	return merged
}

// NoopRedactor passes content through unchanged.
type NoopRedactor struct{}

func (NoopRedactor) Redact(content string) Result {
	return Result{Redacted: content}
}

var (
	_ Redactor = (*KeywordRedactor)(nil)
	_ Redactor = NoopRedactor{}
)
