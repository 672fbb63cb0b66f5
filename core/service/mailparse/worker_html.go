package mailparse

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	styleBlock  = regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraph   = regexp.MustCompile(`(?i)</p>`)
	blockClose  = regexp.MustCompile(`(?i)</(?:div|li|tr)>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
	blankRuns   = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// HTMLToText strips markup from an HTML body, keeping rough line structure.
func HTMLToText(s string) string {
	s = scriptBlock.ReplaceAllString(s, "")
	s = styleBlock.ReplaceAllString(s, "")

	s = lineBreak.ReplaceAllString(s, "\n")
	s = paragraph.ReplaceAllString(s, "\n\n")
	s = blockClose.ReplaceAllString(s, "\n")

	s = anyTag.ReplaceAllString(s, "")

	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = html.UnescapeString(s)

	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
