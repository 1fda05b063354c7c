package quality

// Markers holds every list and threshold the classifier uses. All string
// markers are matched against lower-cased content; JavaScript patterns are
// regular expressions compiled case-insensitively.
type Markers struct {
	HTMLStructure  []string `mapstructure:"html_structure"`
	ArticleContent []string `mapstructure:"article_content"`
	BlockedPhrases []string `mapstructure:"blocked_phrases"`
	JavaScript     []string `mapstructure:"javascript_patterns"`

	// Content shorter than MinimalTextLength with none of MinimalContentTags
	// is treated as needing JavaScript.
	MinimalContentTags []string `mapstructure:"minimal_content_tags"`
	MinimalTextLength  int      `mapstructure:"minimal_text_length"`
	// LongContentLength is the byte length above which content scores as substantial.
	LongContentLength int `mapstructure:"long_content_length"`

	MeaningfulIndicators []string `mapstructure:"meaningful_indicators"`
	BasicHTML            []string `mapstructure:"basic_html"`
	MeaningfulMinText    int      `mapstructure:"meaningful_min_text"`
	ParagraphTextMin     int      `mapstructure:"paragraph_text_min"`
	ParagraphCountMin    int      `mapstructure:"paragraph_count_min"`
}

// DefaultMarkers returns the stock marker lists and thresholds.
func DefaultMarkers() Markers {
	return Markers{
		HTMLStructure: []string{"<!doctype html", "<html", "<head", "<body"},
		ArticleContent: []string{
			"<article",
			"<main",
			"article-content",
			"story-content",
			"post-content",
			"entry-content",
		},
		BlockedPhrases: []string{
			"access denied",
			"403 forbidden",
			"404 not found",
			"page not found",
			"blocked",
			"restricted",
			"paywall",
			"subscription required",
			"login required",
			"sign in to continue",
			"premium content",
		},
		JavaScript: []string{
			`enable.+javascript`,
			`javascript.+required`,
			`javascript.+disabled`,
			`please.+enable.+javascript`,
			`turn.+on.+javascript`,
			`javascript.+must.+be.+enabled`,
			`requires.+javascript`,
			`<noscript`,
			`id=["']root["']`,
			`id=["']app["']`,
			`loading.*app`,
			`react.*app`,
			`vue.*app`,
			`angular.*app`,
			`bundle.*\.js`,
			`window\.__.*__`,
		},
		MinimalContentTags: []string{"<article", "<main", "<section", "<p>"},
		MinimalTextLength:  1000,
		LongContentLength:  1000,
		MeaningfulIndicators: []string{
			"<article",
			"<main",
			"article-content",
			"story-content",
			"post-content",
			"entry-content",
			"<section",
			"<div",
		},
		BasicHTML:         []string{"<html", "<body", "<head"},
		MeaningfulMinText: 200,
		ParagraphTextMin:  100,
		ParagraphCountMin: 2,
	}
}

// withDefaults fills zero-valued fields from DefaultMarkers so a partially
// configured Markers stays usable.
func (m Markers) withDefaults() Markers {
	def := DefaultMarkers()
	if m.HTMLStructure == nil {
		m.HTMLStructure = def.HTMLStructure
	}
	if m.ArticleContent == nil {
		m.ArticleContent = def.ArticleContent
	}
	if m.BlockedPhrases == nil {
		m.BlockedPhrases = def.BlockedPhrases
	}
	if m.JavaScript == nil {
		m.JavaScript = def.JavaScript
	}
	if m.MinimalContentTags == nil {
		m.MinimalContentTags = def.MinimalContentTags
	}
	if m.MinimalTextLength <= 0 {
		m.MinimalTextLength = def.MinimalTextLength
	}
	if m.LongContentLength <= 0 {
		m.LongContentLength = def.LongContentLength
	}
	if m.MeaningfulIndicators == nil {
		m.MeaningfulIndicators = def.MeaningfulIndicators
	}
	if m.BasicHTML == nil {
		m.BasicHTML = def.BasicHTML
	}
	if m.MeaningfulMinText <= 0 {
		m.MeaningfulMinText = def.MeaningfulMinText
	}
	if m.ParagraphTextMin <= 0 {
		m.ParagraphTextMin = def.ParagraphTextMin
	}
	if m.ParagraphCountMin <= 0 {
		m.ParagraphCountMin = def.ParagraphCountMin
	}
	return m
}
