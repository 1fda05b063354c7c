package extract

// Config holds the data that drives pruning and conversion.
type Config struct {
	// DenyList holds tag names and CSS selectors whose subtrees are removed
	// before conversion.
	DenyList []string `mapstructure:"deny_list"`
	// AllowList holds the tags converted to Markdown syntax. Other known tags
	// are reduced to their text.
	AllowList []string `mapstructure:"allow_list"`
	// MinContentChars is the length under which extracted Markdown is logged
	// as suspiciously short.
	MinContentChars int `mapstructure:"min_content_chars"`
}

// DefaultDenyList returns the non-content selectors removed from every page.
func DefaultDenyList() []string {
	return []string{
		"head", "nav", "footer", "script", "style", "iframe", "form", "header",
		"aside", "button", "noscript", "svg", "path",
		".nav", ".footer", ".sidebar", ".ads", ".comments", ".social-share",
		".related-posts", ".subscription",
		"[role='navigation']", "[role='complementary']",
	}
}

// DefaultAllowList returns the tags rendered as Markdown.
func DefaultAllowList() []string {
	return []string{
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "a", "b", "strong", "em", "i",
		"img", "ul", "ol", "li", "blockquote", "code", "pre",
		"table", "thead", "tbody", "tr", "th", "td",
	}
}

// DefaultConfig returns the stock extraction settings.
func DefaultConfig() Config {
	return Config{
		DenyList:        DefaultDenyList(),
		AllowList:       DefaultAllowList(),
		MinContentChars: 50,
	}
}

func (c Config) withDefaults() Config {
	if len(c.DenyList) == 0 {
		c.DenyList = DefaultDenyList()
	}
	if len(c.AllowList) == 0 {
		c.AllowList = DefaultAllowList()
	}
	if c.MinContentChars <= 0 {
		c.MinContentChars = 50
	}
	return c
}
