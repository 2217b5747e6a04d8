package document

import (
	"regexp"
	"strings"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reBlankLine  = regexp.MustCompile(`(?m)^[ \t]+$`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reHyphenWrap = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
)

// Normalize collapses noisy whitespace and rejoins words hyphenated across line breaks.
// Paragraph breaks (blank lines) survive so the chunker can split on them.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\x00", "")
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reBlankLine.ReplaceAllString(s, "")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	s = reHyphenWrap.ReplaceAllString(s, "$1$2")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
