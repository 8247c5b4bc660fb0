package secrets

import (
	"sort"
	"strings"
)

// Finding is one detected secret. The matched value is deliberately absent.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line,omitempty"`
}

// Result is the outcome of inspecting one piece of content.
type Result struct {
	Scrubbed      string         `json:"scrubbed"`
	Findings      []Finding      `json:"findings,omitempty"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// HasFindings reports whether any secret was detected.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// Scrubber detects and redacts secrets using the configured rules.
type Scrubber struct {
	config *Config
}

// New creates a Scrubber; a nil config means DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scrubber{config: cfg}, nil
}

// Scrub returns content with every detected secret replaced by the
// redaction string. Disabled scrubbers pass content through unchanged.
func (s *Scrubber) Scrub(content string) string {
	return s.Inspect(content).Scrubbed
}

// Inspect detects secrets and returns the redacted content together with
// value-free findings.
func (s *Scrubber) Inspect(content string) *Result {
	result := &Result{
		Scrubbed: content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}
	if !s.config.Enabled {
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		if !s.keywordsPresent(rule, content) {
			continue
		}
		for _, match := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.isAllowed(content[match[0]:match[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				StartIndex:  match[0],
				EndIndex:    match[1],
				Line:        strings.Count(content[:match[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			spans = append(spans, span{start: match[0], end: match[1]})
		}
	}
	result.TotalFindings = len(result.Findings)

	if len(spans) > 0 {
		result.Scrubbed = redact(content, spans, s.config.RedactionString)
	}
	return result
}

func (s *Scrubber) keywordsPresent(rule *compiledRule, content string) bool {
	if len(rule.keywords) == 0 {
		return true
	}
	for _, kw := range rule.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

type span struct {
	start, end int
}

// redact replaces the merged spans back-to-front so earlier indexes stay
// valid during replacement.
func redact(content string, spans []span, replacement string) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start <= last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}

	out := content
	for i := len(merged) - 1; i >= 0; i-- {
		r := merged[i]
		out = out[:r.start] + replacement + out[r.end:]
	}
	return out
}
