package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DiscoverConfig bounds link discovery from seed pages.
type DiscoverConfig struct {
	// MaxDepth is the crawl depth; 1 only reads the seed pages.
	MaxDepth int `mapstructure:"max_depth"`
	// MaxLinks caps the number of records returned.
	MaxLinks int `mapstructure:"max_links"`
	// LinkSelector picks the anchors to follow.
	LinkSelector string `mapstructure:"link_selector"`
	// URLFilters, when set, keep only links matching one of the patterns.
	URLFilters  []string      `mapstructure:"url_filters"`
	Parallelism int           `mapstructure:"parallelism"`
	Delay       time.Duration `mapstructure:"delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	// RespectRobots makes the collector honor robots.txt.
	RespectRobots bool `mapstructure:"respect_robots"`
}

func (c DiscoverConfig) withDefaults() DiscoverConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 1
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = 100
	}
	if c.LinkSelector == "" {
		c.LinkSelector = "a[href]"
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 2
	}
	if c.Delay <= 0 {
		c.Delay = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Discoverer finds article links on seed pages with colly. Only links on the
// same host as the seed they were found from are returned.
type Discoverer struct {
	cfg       DiscoverConfig
	filters   []*regexp.Regexp
	transport http.RoundTripper
	logger    *zap.Logger
}

// NewDiscoverer compiles the URL filters and returns a Discoverer.
func NewDiscoverer(cfg DiscoverConfig, transport http.RoundTripper, logger *zap.Logger) (*Discoverer, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	filters := make([]*regexp.Regexp, 0, len(cfg.URLFilters))
	for _, pattern := range cfg.URLFilters {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile url filter %q: %w", pattern, err)
		}
		filters = append(filters, re)
	}
	return &Discoverer{cfg: cfg, filters: filters, transport: transport, logger: logger}, nil
}

type discovered struct {
	mu      sync.Mutex
	seen    map[string]bool
	records []Record
	limit   int
}

func (d *discovered) add(rec Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[rec.URL] || len(d.records) >= d.limit {
		return false
	}
	d.seen[rec.URL] = true
	d.records = append(d.records, rec)
	return true
}

func (d *discovered) full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records) >= d.limit
}

// Discover visits the seeds and returns the links found on them, in
// discovery order, without the seeds themselves.
func (d *Discoverer) Discover(ctx context.Context, seeds []string) ([]Record, error) {
	seedRecords, err := FromURLs(seeds)
	if err != nil {
		return nil, err
	}
	found := &discovered{seen: make(map[string]bool), limit: d.cfg.MaxLinks}
	for _, seed := range seedRecords {
		found.seen[seed.URL] = true
	}

	collector := colly.NewCollector(
		colly.MaxDepth(d.cfg.MaxDepth),
		colly.Async(true),
	)
	collector.IgnoreRobotsTxt = !d.cfg.RespectRobots
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	if d.transport != nil {
		collector.WithTransport(d.transport)
	}
	collector.SetRequestTimeout(d.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: d.cfg.Parallelism,
		Delay:       d.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || found.full() {
			r.Abort()
		}
	})
	collector.OnHTML(d.cfg.LinkSelector, func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if !d.keep(e.Request.URL, link) {
			return
		}
		if !found.add(Record{URL: link, Metadata: map[string]string{
			"discovered_from": e.Request.URL.String(),
			"anchor_text":     strings.Join(strings.Fields(e.Text), " "),
		}}) {
			return
		}
		if err := e.Request.Visit(link); err != nil && !expectedVisitError(err) {
			d.logger.Debug("follow link failed", zap.String("url", link), zap.Error(err))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		d.logger.Warn("discovery request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	for _, seed := range seedRecords {
		if err := collector.Visit(seed.URL); err != nil {
			d.logger.Error("failed to visit seed", zap.String("url", seed.URL), zap.Error(err))
		}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return found.records, fmt.Errorf("discover canceled: %w", err)
	}
	d.logger.Info("discovery finished", zap.Int("seeds", len(seedRecords)), zap.Int("links", len(found.records)))
	return found.records, nil
}

// keep reports whether link is an http(s) URL on the page's host that passes
// the configured filters.
func (d *Discoverer) keep(page *url.URL, link string) bool {
	if link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if !strings.EqualFold(u.Host, page.Host) {
		return false
	}
	if len(d.filters) == 0 {
		return true
	}
	for _, re := range d.filters {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

func expectedVisitError(err error) bool {
	var already *colly.AlreadyVisitedError
	return errors.As(err, &already) ||
		errors.Is(err, colly.ErrMaxDepth) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrAbortedAfterHeaders)
}
