// Package httpfetch implements the cheap HTTP tier: a single browser-like GET
// per attempt, charset normalization, and the anti-bot and needs-rendering
// classifications that drive escalation.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/domain"
	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/article-harvester/internal/quality"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 10 << 20
	tierLabel           = "http"
)

// Config controls the HTTP tier.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	// Headers overrides DefaultHeaders when non-nil.
	Headers http.Header
	AntiBot AntiBotConfig
	// Transport overrides the default pooled transport.
	Transport http.RoundTripper
}

// Response is the raw result of one GET. Body is decompressed but not decoded.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher issues single GET requests with browser-like headers.
type Fetcher struct {
	cfg        Config
	client     *http.Client
	headers    http.Header
	antiBot    AntiBotConfig
	limiter    *ratelimit.Limiter
	classifier *quality.Classifier
	logger     *zap.Logger
}

// New builds a Fetcher. limiter may be shared with other tiers; a nil
// classifier falls back to quality.Default.
func New(cfg Config, limiter *ratelimit.Limiter, classifier *quality.Classifier, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	headers := cfg.Headers
	if headers == nil {
		headers = DefaultHeaders()
	}
	if classifier == nil {
		classifier = quality.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		client:     &http.Client{Transport: transport},
		headers:    headers,
		antiBot:    cfg.AntiBot.withDefaults(),
		limiter:    limiter,
		classifier: classifier,
		logger:     logger,
	}
}

// Get performs one GET. Non-2xx statuses are returned as responses, not
// errors; transport failures are returned as a single wrapped error with no
// retry.
func (f *Fetcher) Get(ctx context.Context, req harvest.FetchRequest) (*Response, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("fetch: empty url")
	}
	if req.RateLimit && f.limiter != nil {
		if err := f.limiter.Wait(ctx, domain.Extract(req.URL)); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: build request: %w", req.URL, err)
	}
	httpReq.Header = f.headers.Clone()

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.String("url", req.URL), zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", req.URL, err)
	}
	body, err := decompress(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// NeedsRendering reports whether the body looks like it needs a browser:
// JavaScript markers or not enough meaningful content.
func (f *Fetcher) NeedsRendering(resp *Response) bool {
	if resp == nil {
		return true
	}
	return f.classifier.Analyze(resp.Body).NeedsJavaScript || !f.classifier.HasMeaningfulContent(resp.Body)
}

// Attempt runs one HTTP-tier attempt and classifies it. It never returns an
// error; failures are reported through the outcome kind.
func (f *Fetcher) Attempt(ctx context.Context, req harvest.FetchRequest) harvest.FetchOutcome {
	outcome := f.attempt(ctx, req)
	metrics.ObserveFetch(tierLabel, outcome.Kind.String(), len(outcome.Body))
	return outcome
}

func (f *Fetcher) attempt(ctx context.Context, req harvest.FetchRequest) harvest.FetchOutcome {
	resp, err := f.Get(ctx, req)
	if err != nil {
		f.logger.Debug("http fetch failed", zap.String("url", req.URL), zap.Error(err))
		return harvest.FetchOutcome{Kind: harvest.OutcomeFailed, Reason: "network_error", Err: err}
	}
	if f.IsBlockedByAntiBot(resp) {
		return harvest.FetchOutcome{
			Kind:   harvest.OutcomeBlocked,
			Reason: fmt.Sprintf("anti_bot (status %d)", resp.StatusCode),
		}
	}
	if f.NeedsRendering(resp) {
		return harvest.FetchOutcome{Kind: harvest.OutcomeNeedsRendering, Reason: "needs_rendering"}
	}
	decoded, enc := Decode(resp.Body, resp.Header.Get("Content-Type"))
	if !f.classifier.HasMeaningfulContent(decoded) {
		return harvest.FetchOutcome{Kind: harvest.OutcomeNeedsRendering, Reason: "no_meaningful_content"}
	}
	return harvest.FetchOutcome{Kind: harvest.OutcomeFetched, Body: decoded, Encoding: enc}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
}
