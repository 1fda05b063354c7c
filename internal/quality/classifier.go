// Package quality scores raw page content with rule-based heuristics.
//
// Analyze produces an informational QualityAssessment; HasMeaningfulContent is
// the separate, stricter gate used when deciding whether to escalate a fetch.
// The two use independent marker lists and thresholds.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// QualityAssessment summarizes the usability signals found in a response body.
type QualityAssessment struct {
	ContentLength int `json:"content_length"`
	// TextLength counts runes of the lower-cased body, markup included.
	TextLength        int     `json:"text_length"`
	HasHTMLStructure  bool    `json:"has_html_structure"`
	HasArticleContent bool    `json:"has_article_content"`
	IsBlocked         bool    `json:"is_blocked"`
	NeedsJavaScript   bool    `json:"needs_javascript"`
	QualityScore      float64 `json:"quality_score"`
}

var paragraphPattern = regexp.MustCompile(`<p[^>]*>([^<]+)</p>`)

// Classifier applies a fixed set of Markers. It is safe for concurrent use.
type Classifier struct {
	markers    Markers
	javascript []*regexp.Regexp
}

// New compiles the JavaScript patterns in markers. Zero-valued fields fall
// back to DefaultMarkers.
func New(markers Markers) (*Classifier, error) {
	markers = markers.withDefaults()
	markers.HTMLStructure = lowerAll(markers.HTMLStructure)
	markers.ArticleContent = lowerAll(markers.ArticleContent)
	markers.BlockedPhrases = lowerAll(markers.BlockedPhrases)
	markers.MinimalContentTags = lowerAll(markers.MinimalContentTags)
	markers.MeaningfulIndicators = lowerAll(markers.MeaningfulIndicators)
	markers.BasicHTML = lowerAll(markers.BasicHTML)
	compiled := make([]*regexp.Regexp, 0, len(markers.JavaScript))
	for _, pattern := range markers.JavaScript {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile javascript pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return &Classifier{markers: markers, javascript: compiled}, nil
}

// Default returns a Classifier using DefaultMarkers.
func Default() *Classifier {
	c, err := New(DefaultMarkers())
	if err != nil {
		panic(err)
	}
	return c
}

// Markers returns the configuration in effect.
func (c *Classifier) Markers() Markers {
	return c.markers
}

// Analyze inspects content and never panics; malformed input yields a
// zero assessment carrying only the content length.
func (c *Classifier) Analyze(content []byte) (assessment QualityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			assessment = QualityAssessment{ContentLength: len(content)}
		}
	}()

	text := scanText(content)
	assessment = QualityAssessment{
		ContentLength:     len(content),
		TextLength:        utf8.RuneCountInString(text),
		HasHTMLStructure:  containsAny(text, c.markers.HTMLStructure),
		HasArticleContent: containsAny(text, c.markers.ArticleContent),
		IsBlocked:         containsAny(text, c.markers.BlockedPhrases),
	}

	minimal := assessment.TextLength < c.markers.MinimalTextLength &&
		!containsAny(text, c.markers.MinimalContentTags)
	assessment.NeedsJavaScript = minimal || c.matchesJavaScript(text)

	// Weights are in tenths so the sum stays exact.
	score := 0
	if assessment.ContentLength > c.markers.LongContentLength {
		score += 2
	}
	if assessment.HasHTMLStructure {
		score += 2
	}
	if assessment.HasArticleContent {
		score += 3
	}
	if !assessment.IsBlocked {
		score += 2
	}
	if !assessment.NeedsJavaScript {
		score++
	}
	assessment.QualityScore = min(float64(score)/10, 1.0)
	return assessment
}

// IsBlocked reports whether content contains any blocked-page phrase.
func (c *Classifier) IsBlocked(content []byte) bool {
	return containsAny(scanText(content), c.markers.BlockedPhrases)
}

// HasMeaningfulContent reports whether content looks like a real article page:
// enough text, a basic HTML skeleton, and either a content container or
// enough paragraph text.
func (c *Classifier) HasMeaningfulContent(content []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	text := scanText(content)
	if utf8.RuneCountInString(text) < c.markers.MeaningfulMinText {
		return false
	}
	if !containsAny(text, c.markers.BasicHTML) {
		return false
	}
	if containsAny(text, c.markers.MeaningfulIndicators) {
		return true
	}

	matches := paragraphPattern.FindAllStringSubmatch(text, -1)
	if len(matches) >= c.markers.ParagraphCountMin {
		return true
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m[1])
	}
	return utf8.RuneCountInString(strings.TrimSpace(strings.Join(parts, " "))) > c.markers.ParagraphTextMin
}

func (c *Classifier) matchesJavaScript(text string) bool {
	for _, re := range c.javascript {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// scanText decodes content permissively for pattern scanning only.
func scanText(content []byte) string {
	return strings.ToLower(strings.ToValidUTF8(string(content), ""))
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}
