package extract

import (
	"regexp"
	"strings"
)

// lineFilters drop whole lines of boilerplate. Patterns are anchored at the
// start of the line.
var lineFilters = []*regexp.Regexp{
	// engagement prompts
	regexp.MustCompile(`(?i)^\s*(?:follow|share|like|tweet|subscribe|sign up|sign in|log in|register)\b`),
	// links to social profiles
	regexp.MustCompile(`^\s*\[(?:Facebook|Twitter|LinkedIn|Instagram|YouTube|GitHub|Pinterest)[^\]]*\]\(http[^)]+\)`),
	// bare social or publishing platform URLs
	regexp.MustCompile(`(?i)^https?://(?:[^/\s]*\.)?(?:facebook|twitter|x|linkedin|instagram|youtube|github|pinterest|medium|substack)\.com\b`),
	// relative links
	regexp.MustCompile(`^\s*\[.*\]\(/.*\)`),
	// bylines
	regexp.MustCompile(`(?i)^\s*(?:by|published on|written by|author)\b`),
	// reading time
	regexp.MustCompile(`(?i)^\s*\d+\s*min(?:ute)?s?\s*read\b`),
	// link lists
	regexp.MustCompile(`^\s*-\s*\[.*\]\(.*\)`),
	// horizontal rules
	regexp.MustCompile(`^\s*[-—_]{3,}\s*$`),
}

var (
	emptyImage     = regexp.MustCompile(`!\[([^\]]*)\]\(\s*\)`)
	emptyLink      = regexp.MustCompile(`\[([^\]]*)\]\(\s*\)`)
	emptyHeader    = regexp.MustCompile(`(?m)^#+[ \t]*$`)
	extraNewlines  = regexp.MustCompile(`\n{3,}`)
	trailingSpaces = regexp.MustCompile(`(?m)[ \t]+$`)
)

// CleanLines drops boilerplate lines and keeps at most one blank line between
// content lines.
func CleanLines(markdown string) string {
	lines := strings.Split(markdown, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if dropLine(line) {
			continue
		}
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
			continue
		}
		if n := len(kept); n > 0 && strings.TrimSpace(kept[n-1]) != "" {
			kept = append(kept, "")
		}
	}
	return strings.Join(kept, "\n")
}

func dropLine(line string) bool {
	for _, re := range lineFilters {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// CleanText normalizes the joined Markdown: empty links, images and headers
// go, every heading is followed by exactly one blank line, runs of blank
// lines collapse, and trailing whitespace is trimmed.
func CleanText(markdown string) string {
	out := emptyImage.ReplaceAllString(markdown, "")
	out = emptyLink.ReplaceAllString(out, "$1")
	out = emptyHeader.ReplaceAllString(out, "")
	out = spaceHeadings(out)
	out = extraNewlines.ReplaceAllString(out, "\n\n")
	out = trailingSpaces.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// Clean runs CleanLines then CleanText.
func Clean(markdown string) string {
	return CleanText(CleanLines(markdown))
}

func spaceHeadings(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		out = append(out, line)
		if strings.HasPrefix(line, "#") && i+1 < len(lines) && lines[i+1] != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}
