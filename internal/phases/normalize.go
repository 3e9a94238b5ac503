package phases

import (
	"regexp"
	"strings"
)

// The description cleanup is an ordered rule chain; each rule removes one
// class of parsing artifact and later rules assume the earlier ones have
// run (ranged timestamps must go before standalone ones, whitespace
// collapse before punctuation fixup). Do not reorder.
var descriptionRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	// Ranged timestamps that leaked out of the phase header, e.g. "0:01-0:03".
	{regexp.MustCompile(`\s*\d{1,2}:\d{2}\s*-\s*\d{1,2}:\d{2}\s*`), " "},
	// Partially mangled ranges such as ":01-0:03".
	{regexp.MustCompile(`\s*:\d{2}\s*-\s*\d{1,2}:\d{2}\s*`), " "},
	// Standalone timestamps at the end, start, and middle of the text.
	{regexp.MustCompile(`\s+\d{1,2}:\d{2}\s*$`), ""},
	{regexp.MustCompile(`^\d{1,2}:\d{2}\s+`), ""},
	{regexp.MustCompile(`\s+\d{1,2}:\d{2}\s+`), " "},
	// Collapse runs of whitespace left by the removals above.
	{regexp.MustCompile(`\s+`), " "},
	// Strip emphasis markers.
	{regexp.MustCompile(`\*\*`), ""},
	// Re-attach punctuation orphaned by the removals above.
	{regexp.MustCompile(`\s+([.,;:])`), "$1"},
}

var (
	leadingMarkup    = regexp.MustCompile(`^[\d.\-*#>\s]+`)
	fieldLabelPrefix = regexp.MustCompile(`(?i)^\**(Description|Key timestamp|Key time stamp|Timestamp|Phase description)\*{0,2}:?\s*`)
	leadingTimestamp = regexp.MustCompile(`^\d{1,2}:\d{2}\s*`)
)

// cleanDescriptionLine strips list/emphasis markup, field labels, and a
// leading timestamp token from one line before it joins a phase
// description. Timestamp tokens inside body lines are parsing artifacts,
// not content.
func cleanDescriptionLine(line string) string {
	// Timestamp first: the markup class includes digits and would eat the
	// minutes part of a leading "0:45".
	line = leadingTimestamp.ReplaceAllString(line, "")
	line = leadingMarkup.ReplaceAllString(line, "")
	line = fieldLabelPrefix.ReplaceAllString(line, "")
	line = leadingTimestamp.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// normalizeDescription applies the full cleanup chain to a finalized phase
// description and capitalizes the first letter.
func normalizeDescription(desc string) string {
	for _, rule := range descriptionRules {
		desc = rule.re.ReplaceAllString(desc, rule.repl)
	}
	desc = strings.TrimSpace(desc)

	if desc == "" {
		return desc
	}
	return strings.ToUpper(desc[:1]) + desc[1:]
}
