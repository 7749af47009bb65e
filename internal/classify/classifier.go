package classify

import (
	"regexp"
	"strings"
	"time"

	"pulseboard/internal/domain"
)

const maxDetectionText = 150

// Metadata is caller-supplied context echoed into the analysis metadata.
type Metadata struct {
	Username  string
	Timestamp string
}

// Classifier runs the pattern catalog over a single message. The zero value
// uses the wall clock; tests inject Now for stable detected_at stamps.
type Classifier struct {
	Now func() time.Time
}

func (c Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// Classify scans text against all four rule tables and returns the structured
// analysis. It never fails: empty or whitespace-only input yields an analysis
// with empty slices and zero confidence.
func (c Classifier) Classify(text string, meta Metadata) domain.Analysis {
	start := time.Now()
	analysis := domain.Analysis{
		Blockers:  []domain.Detection{},
		Decisions: []domain.Detection{},
		Actions:   []domain.Detection{},
		Risks:     []domain.Detection{},
	}
	analysis.Metadata = domain.AnalysisMetadata{
		AnalyzedAt: c.now().Format(time.RFC3339),
		Username:   meta.Username,
		Timestamp:  meta.Timestamp,
	}
	if strings.TrimSpace(text) == "" {
		analysis.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
		return analysis
	}

	lower := strings.ToLower(text)
	detectedAt := c.now().Format(time.RFC3339)
	matches := 0

	for _, rule := range blockerRules {
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		matches++
		analysis.Blockers = append(analysis.Blockers, domain.Detection{
			Text:        extract(rule.Pattern, text),
			FullMessage: text,
			Severity:    rule.Attribute,
			Keyword:     rule.Keyword,
			DetectedAt:  detectedAt,
		})
	}

	for _, rule := range decisionRules {
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		matches++
		analysis.Decisions = append(analysis.Decisions, domain.Detection{
			Text:        extract(rule.Pattern, text),
			FullMessage: text,
			Impact:      rule.Attribute,
			Keyword:     rule.Keyword,
			DetectedAt:  detectedAt,
		})
	}

	for _, rule := range actionRules {
		if rule.Keyword == mentionKeyword {
			for _, d := range mentionDetections(text, rule.Attribute, detectedAt) {
				matches++
				analysis.Actions = append(analysis.Actions, d)
			}
			continue
		}
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		matches++
		assignee, extracted := extractAction(rule.Pattern, text)
		analysis.Actions = append(analysis.Actions, domain.Detection{
			Text:        truncate(extracted),
			FullMessage: text,
			Urgency:     rule.Attribute,
			Assignee:    assignee,
			Keyword:     rule.Keyword,
			DetectedAt:  detectedAt,
		})
	}

	for _, rule := range riskRules {
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		matches++
		analysis.Risks = append(analysis.Risks, domain.Detection{
			Text:        extract(rule.Pattern, text),
			FullMessage: text,
			Priority:    rule.Attribute,
			Keyword:     rule.Keyword,
			DetectedAt:  detectedAt,
		})
	}

	analysis.Metadata.TotalDetections = matches
	analysis.Metadata.Confidence = min(100, matches*25)
	analysis.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
	return analysis
}

// extract applies a single-group pattern against the original-case text.
// A miss, or a capture that trims to nothing, falls back to the full message.
func extract(pattern *regexp.Regexp, text string) string {
	extracted := text
	if m := pattern.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			extracted = s
		}
	}
	return truncate(extracted)
}

// extractAction reads group 1 as the assignee token and group 2 as the action
// text. Patterns with a single group (todo) leave the text slot empty, so the
// extracted text falls back to the full message while the capture still fills
// the assignee.
func extractAction(pattern *regexp.Regexp, text string) (assignee, extracted string) {
	assignee = "unassigned"
	extracted = text
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return assignee, extracted
	}
	if m[1] != "" {
		assignee = m[1]
	}
	if len(m) > 2 {
		if s := strings.TrimSpace(m[2]); s != "" {
			extracted = s
		}
	}
	return assignee, extracted
}

// mentionDetections emits one detection per @handle with a short context
// window around the mention (20 chars before, 80 after).
func mentionDetections(text, urgency, detectedAt string) []domain.Detection {
	var out []domain.Detection
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		idx := m[0]
		start := idx - 20
		if start < 0 {
			start = 0
		}
		end := idx + 80
		if end > len(text) {
			end = len(text)
		}
		out = append(out, domain.Detection{
			Text:        truncate(strings.TrimSpace(text[start:end])),
			FullMessage: text,
			Urgency:     urgency,
			Assignee:    "@" + text[m[2]:m[3]],
			Keyword:     mentionKeyword,
			DetectedAt:  detectedAt,
		})
	}
	return out
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxDetectionText {
		return s
	}
	return string(r[:maxDetectionText])
}
