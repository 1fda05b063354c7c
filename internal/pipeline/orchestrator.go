// Package pipeline routes items through the HTTP and render fetch tiers and
// turns the result into documents.
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/domain"
	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/telemetry"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultRenderTimeout = 10 * time.Second

	reasonSkipped = "skipped_domain"
	reasonJSHeavy = "js_heavy_domain"
)

// Attempter runs one classified HTTP-tier fetch.
type Attempter interface {
	Attempt(ctx context.Context, req harvest.FetchRequest) harvest.FetchOutcome
}

// Config tunes routing between the two tiers.
type Config struct {
	// SkipDomains are never fetched; items for them complete with no content.
	SkipDomains []string `mapstructure:"skip_domains"`
	// JSHeavyDomains always escalate to the render tier.
	JSHeavyDomains []string      `mapstructure:"js_heavy_domains"`
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	RenderTimeout  time.Duration `mapstructure:"render_timeout"`
	// DisableRateLimit turns off per-domain spacing for HTTP attempts.
	DisableRateLimit bool `mapstructure:"disable_rate_limit"`
}

// DefaultSkipDomains returns platforms that cannot be fetched usefully.
func DefaultSkipDomains() []string {
	return []string{"x.com", "youtube.com"}
}

// DefaultJSHeavyDomains returns hosting platforms whose pages are built
// client-side.
func DefaultJSHeavyDomains() []string {
	return []string{
		"medium.com", "substack.com", "ghost.io", "notion.site",
		"vercel.app", "netlify.app", "firebase.app", "web.app",
	}
}

func (c Config) withDefaults() Config {
	if c.SkipDomains == nil {
		c.SkipDomains = DefaultSkipDomains()
	}
	if c.JSHeavyDomains == nil {
		c.JSHeavyDomains = DefaultJSHeavyDomains()
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = defaultRenderTimeout
	}
	return c
}

// Orchestrator decides, per item, which fetch tier supplies its content.
type Orchestrator struct {
	http     Attempter
	renderer harvest.Renderer
	skip     *domain.Matcher
	jsHeavy  *domain.Matcher
	cfg      Config
	logger   *zap.Logger
}

// NewOrchestrator wires the two tiers together.
func NewOrchestrator(cfg Config, http Attempter, renderer harvest.Renderer, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		http:     http,
		renderer: renderer,
		skip:     domain.NewMatcher(cfg.SkipDomains),
		jsHeavy:  domain.NewMatcher(cfg.JSHeavyDomains),
		cfg:      cfg,
		logger:   logger,
	}
}

// Process is the HTTP stage. The returned item is either complete, with the
// decoded body attached, or routed to rendering unchanged apart from its
// route and reason. Skipped domains complete with no content and no request.
func (o *Orchestrator) Process(ctx context.Context, item harvest.Item) (result harvest.Item) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.http", trace.WithAttributes(attribute.String("url", item.URL)))
	defer func() {
		span.SetAttributes(
			attribute.String("route", string(result.Route)),
			attribute.String("reason", result.Reason),
		)
		span.End()
	}()

	if o.skip.MatchURL(item.URL) {
		o.logger.Info("skipping domain", zap.String("url", item.URL))
		item.Content = nil
		item.Encoding = ""
		item.Route = harvest.RouteComplete
		item.Tier = harvest.TierSkipped
		item.Reason = reasonSkipped
		return item
	}

	outcome := o.http.Attempt(ctx, harvest.FetchRequest{
		URL:       item.URL,
		RateLimit: !o.cfg.DisableRateLimit,
		Timeout:   o.cfg.HTTPTimeout,
	})
	if outcome.Kind != harvest.OutcomeFetched {
		fields := []zap.Field{zap.String("url", item.URL), zap.String("reason", outcome.Reason)}
		if outcome.Err != nil {
			fields = append(fields, zap.Error(outcome.Err))
		}
		o.logger.Info("routing to render tier", fields...)
		return escalate(item, outcome.Kind.String(), outcome.Reason)
	}
	if o.jsHeavy.MatchURL(item.URL) {
		o.logger.Debug("js-heavy domain, routing to render tier", zap.String("url", item.URL))
		return escalate(item, reasonJSHeavy, reasonJSHeavy)
	}

	item.Content = outcome.Body
	item.Encoding = outcome.Encoding
	item.Route = harvest.RouteComplete
	item.Tier = harvest.TierHTTP
	item.Reason = ""
	o.logger.Info("fetched via http", zap.String("url", item.URL), zap.Int("bytes", len(outcome.Body)))
	return item
}

func escalate(item harvest.Item, label, reason string) harvest.Item {
	metrics.ObserveEscalation(label)
	item.Route = harvest.RouteNeedsRendering
	item.Reason = reason
	return item
}

// Render is the render stage. It always returns the item; when the renderer
// yields nothing the item carries empty content.
func (o *Orchestrator) Render(ctx context.Context, item harvest.Item) harvest.Item {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.render", trace.WithAttributes(attribute.String("url", item.URL)))
	defer span.End()

	item.Tier = harvest.TierRender
	item.Route = harvest.RouteComplete
	item.Encoding = ""
	if o.renderer == nil {
		o.logger.Warn("no renderer configured, continuing with empty content", zap.String("url", item.URL))
		item.Content = nil
		return item
	}

	body := o.renderer.Fetch(ctx, item.URL, o.cfg.RenderTimeout)
	span.SetAttributes(attribute.Int("bytes", len(body)))
	metrics.ObserveFetch(string(harvest.TierRender), renderOutcome(body), len(body))
	if len(body) == 0 {
		o.logger.Warn("renderer returned no content, continuing with empty content", zap.String("url", item.URL))
		item.Content = nil
		return item
	}
	item.Content = body
	item.Encoding = "utf-8"
	o.logger.Info("fetched via renderer", zap.String("url", item.URL), zap.Int("bytes", len(body)))
	return item
}

func renderOutcome(body []byte) string {
	if len(body) == 0 {
		return harvest.OutcomeFailed.String()
	}
	return harvest.OutcomeFetched.String()
}
