// Package extract turns fetched HTML into cleaned Markdown.
package extract

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/harvest"
)

const (
	notFetchedFormat   = "Content could not be fetched for this article. Please visit the source: %s"
	notExtractedFormat = "Content could not be extracted for this article. Please visit the source: %s"
	errorFormat        = "Error processing content: %v\n\nPlease visit the source: %s"
)

// Extractor prunes, converts and cleans HTML documents. It is safe for
// concurrent use.
type Extractor struct {
	cfg    Config
	allow  map[string]bool
	logger *zap.Logger
}

// New creates an Extractor. Empty config fields take their defaults.
func New(cfg Config, logger *zap.Logger) *Extractor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	allow := make(map[string]bool, len(cfg.AllowList))
	for _, tag := range cfg.AllowList {
		allow[strings.ToLower(strings.TrimSpace(tag))] = true
	}
	return &Extractor{cfg: cfg, allow: allow, logger: logger}
}

// Extract converts body into a Document for url. It never fails: a missing
// body, an empty result and a conversion error each yield a placeholder
// document that points the reader at the source.
func (e *Extractor) Extract(url string, body []byte) harvest.Document {
	doc := harvest.Document{URL: url}
	if len(bytes.TrimSpace(body)) == 0 {
		e.logger.Warn("no content fetched, using placeholder", zap.String("url", url))
		doc.Markdown = fmt.Sprintf(notFetchedFormat, url)
		doc.Placeholder = true
		return doc
	}

	markdown, meta, err := e.convert(body)
	if err != nil {
		e.logger.Error("failed to process content", zap.String("url", url), zap.Error(err))
		doc.Markdown = fmt.Sprintf(errorFormat, err, url)
		doc.Placeholder = true
		return doc
	}
	doc.Title, doc.Description, doc.SiteName = meta.title, meta.description, meta.siteName

	if n := utf8.RuneCountInString(markdown); n < e.cfg.MinContentChars {
		e.logger.Warn("extracted content seems too short", zap.String("url", url), zap.Int("chars", n))
	}
	if markdown == "" {
		doc.Markdown = fmt.Sprintf(notExtractedFormat, url)
		doc.Placeholder = true
		return doc
	}
	doc.Markdown = markdown
	e.logger.Debug("extracted content", zap.String("url", url), zap.Int("chars", len(markdown)))
	return doc
}

// Markdown converts an HTML fragment or page and applies the cleanup passes.
func (e *Extractor) Markdown(body []byte) (string, error) {
	markdown, _, err := e.convert(body)
	return markdown, err
}

type pageMeta struct {
	title       string
	description string
	siteName    string
}

func (e *Extractor) convert(body []byte) (markdown string, meta pageMeta, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("convert panic: %v", rec)
		}
	}()

	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", pageMeta{}, fmt.Errorf("parse html: %w", err)
	}
	meta = readMeta(body, dom)

	for _, sel := range e.cfg.DenyList {
		dom.Find(sel).Remove()
	}

	raw := newConverter(e.allow).Convert(dom.Selection)
	return Clean(raw), meta, nil
}

// readMeta prefers OpenGraph properties and falls back to <title> and the
// description meta tag.
func readMeta(body []byte, dom *goquery.Document) pageMeta {
	var meta pageMeta
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err == nil {
		meta.title = strings.TrimSpace(og.Title)
		meta.description = strings.TrimSpace(og.Description)
		meta.siteName = strings.TrimSpace(og.SiteName)
	}
	if meta.title == "" {
		meta.title = strings.TrimSpace(dom.Find("title").First().Text())
	}
	if meta.description == "" {
		if v, ok := dom.Find(`meta[name="description"]`).First().Attr("content"); ok {
			meta.description = strings.TrimSpace(v)
		}
	}
	return meta
}
