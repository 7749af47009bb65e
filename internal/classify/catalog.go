package classify

import "regexp"

// Rule is one catalog entry: a literal trigger keyword, the attribute the
// detection carries, and the extraction pattern applied on trigger. The rule
// fires on a plain substring test; the pattern only shapes extracted text.
type Rule struct {
	Keyword   string
	Attribute string
	Pattern   *regexp.Regexp
}

// The four rule tables. Declaration order is observable: detections are
// emitted in table order, and UI badge ordering depends on it.
var (
	blockerRules = []Rule{
		{Keyword: "waiting for", Attribute: "high", Pattern: regexp.MustCompile(`(?i)waiting for\s+(.{1,100})`)},
		{Keyword: "stuck on", Attribute: "high", Pattern: regexp.MustCompile(`(?i)stuck on\s+(.{1,100})`)},
		{Keyword: "blocked by", Attribute: "high", Pattern: regexp.MustCompile(`(?i)blocked by\s+(.{1,100})`)},
		{Keyword: "depends on", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)depends on\s+(.{1,100})`)},
		{Keyword: "can't proceed", Attribute: "high", Pattern: regexp.MustCompile(`(?i)can't proceed\s+(.{0,100})`)},
		{Keyword: "need approval", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)need approval\s+(.{0,100})`)},
		{Keyword: "pending", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)pending\s+(.{1,100})`)},
	}

	decisionRules = []Rule{
		{Keyword: "we decided", Attribute: "strategic", Pattern: regexp.MustCompile(`(?i)we decided\s+(.{1,100})`)},
		{Keyword: "agreed to", Attribute: "team", Pattern: regexp.MustCompile(`(?i)agreed to\s+(.{1,100})`)},
		{Keyword: "approved", Attribute: "formal", Pattern: regexp.MustCompile(`(?i)approved\s+(.{1,100})`)},
		{Keyword: "let's use", Attribute: "technical", Pattern: regexp.MustCompile(`(?i)let's use\s+(.{1,100})`)},
		{Keyword: "settled on", Attribute: "team", Pattern: regexp.MustCompile(`(?i)settled on\s+(.{1,100})`)},
		{Keyword: "going with", Attribute: "technical", Pattern: regexp.MustCompile(`(?i)going with\s+(.{1,100})`)},
		{Keyword: "chosen", Attribute: "strategic", Pattern: regexp.MustCompile(`(?i)chosen\s+(.{1,100})`)},
	}

	// Action rules capture two groups: group 1 is the assignee token, group 2
	// the action text. The todo rule has a single group; its capture lands in
	// the assignee slot and the extracted text falls back to the full message.
	// That quirk is a compatibility surface, do not straighten it out.
	actionRules = []Rule{
		{Keyword: "should", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)(\w+)\s+should\s+(.{1,100})`)},
		{Keyword: "will", Attribute: "high", Pattern: regexp.MustCompile(`(?i)(\w+)\s+will\s+(.{1,100})`)},
		{Keyword: "needs to", Attribute: "high", Pattern: regexp.MustCompile(`(?i)(\w+)\s+needs to\s+(.{1,100})`)},
		{Keyword: "must", Attribute: "critical", Pattern: regexp.MustCompile(`(?i)(\w+)\s+must\s+(.{1,100})`)},
		{Keyword: "todo", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)todo:\s*(.{1,100})`)},
		{Keyword: mentionKeyword, Attribute: "high", Pattern: mentionPattern},
	}

	riskRules = []Rule{
		{Keyword: "problem", Attribute: "high", Pattern: regexp.MustCompile(`(?i)problem with\s+(.{1,100})`)},
		{Keyword: "error", Attribute: "high", Pattern: regexp.MustCompile(`(?i)error\s+(.{1,100})`)},
		{Keyword: "issue", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)issue with\s+(.{1,100})`)},
		{Keyword: "bug", Attribute: "high", Pattern: regexp.MustCompile(`(?i)bug\s+(.{1,100})`)},
		{Keyword: "crash", Attribute: "critical", Pattern: regexp.MustCompile(`(?i)crash\w*\s+(.{0,100})`)},
		{Keyword: "won't work", Attribute: "high", Pattern: regexp.MustCompile(`(?i)won't work\s+(.{0,100})`)},
		{Keyword: "failing", Attribute: "high", Pattern: regexp.MustCompile(`(?i)failing\s+(.{1,100})`)},
		{Keyword: "concern", Attribute: "medium", Pattern: regexp.MustCompile(`(?i)concern about\s+(.{1,100})`)},
	}
)

const mentionKeyword = "@mention"

var mentionPattern = regexp.MustCompile(`@(\w+)`)
