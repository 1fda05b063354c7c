// Package headless renders pages in headless Chrome via chromedp.
//
// A Renderer owns one browser process, started lazily on the first fetch and
// reused until Close. Fetches run in a small pool of reusable tabs against
// that process, so the start-up cost is paid once per run rather than once
// per page.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/domain"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
)

// ErrClosed is returned internally once the renderer has been closed.
var ErrClosed = errors.New("renderer closed")

// Renderer implements harvest.Renderer with chromedp.
type Renderer struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	sess   *session
	closed bool

	slots chan struct{}
	idle  chan *tab

	closeOnce sync.Once
	closeErr  error
}

type session struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	meta   *responseMeta
	owner  *session
}

// New creates a Renderer. No browser is started until the first Fetch.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) *Renderer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		slots:   make(chan struct{}, cfg.MaxParallel),
		idle:    make(chan *tab, cfg.MaxParallel),
	}
}

// Fetch renders rawURL and returns the serialized DOM as UTF-8, or nil when
// anything goes wrong. It never panics and never returns an error.
func (r *Renderer) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (html []byte) {
	start := time.Now()
	result := "ok"
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("render panicked", zap.String("url", rawURL), zap.Any("panic", rec))
			html = nil
			result = "panic"
		}
		metrics.ObserveRender(result, time.Since(start))
	}()

	body, err := r.fetch(ctx, rawURL, timeout)
	if err != nil {
		result = "error"
		r.logger.Warn("render fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	r.logger.Debug("render fetch succeeded",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body
}

func (r *Renderer) fetch(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, domain.Extract(rawURL)); err != nil {
			return nil, err
		}
	}

	sess, err := r.ensureSession()
	if err != nil {
		return nil, err
	}
	t, err := r.acquire(ctx, sess)
	if err != nil {
		return nil, err
	}
	healthy := false
	defer func() { r.release(t, healthy) }()

	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	t.meta.reset()
	var html string
	err = chromedp.Run(runCtx,
		r.navigateAction(rawURL),
		r.challengeAction(t.meta),
		r.domReadyAction(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", rawURL, err)
	}
	healthy = true
	return []byte(html), nil
}

// navigateAction starts navigation and returns once the document response is
// committed, without waiting for the load event.
func (r *Renderer) navigateAction(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(rawURL), &res); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigate: %s", res.ErrorText)
		}
		return nil
	})
}

// challengeAction waits for a known anti-bot challenge to detach when the
// document came back with a challenge status. An unresolved challenge is not
// an error; the page is returned as-is.
func (r *Renderer) challengeAction(meta *responseMeta) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		status := meta.waitStatus(ctx, defaultStatusWait)
		if !r.cfg.isChallengeStatus(status) {
			return nil
		}
		for _, sel := range r.cfg.ChallengeSelectors {
			var nodes []*cdp.Node
			if err := chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)).Do(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if len(nodes) == 0 {
				continue
			}
			r.logger.Info("waiting for anti-bot challenge", zap.String("selector", sel), zap.Int("status", status))
			waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ChallengeTimeout)
			err := chromedp.WaitNotPresent(sel, chromedp.ByQuery).Do(waitCtx)
			cancel()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				r.logger.Info("anti-bot challenge unresolved, continuing", zap.String("selector", sel))
			}
			return nil
		}
		return nil
	})
}

// domReadyAction polls document.readyState until the DOM is parsed or the
// bound expires. Expiry is tolerated.
func (r *Renderer) domReadyAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, r.cfg.DOMReadyTimeout)
		defer cancel()
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(waitCtx); err == nil {
				if state == "interactive" || state == "complete" {
					return nil
				}
			}
			select {
			case <-waitCtx.Done():
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			case <-time.After(50 * time.Millisecond):
			}
		}
	})
}

// ensureSession starts the browser on first use. A failed start is retried on
// the next call; a crashed browser is replaced.
func (r *Renderer) ensureSession() (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.sess != nil && r.sess.browserCtx.Err() == nil {
		return r.sess, nil
	}
	if r.sess != nil {
		r.logger.Warn("browser session lost, restarting")
		r.sess.browserCancel()
		r.sess.allocCancel()
		r.sess = nil
	}

	start := time.Now()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			r.logger.Debug("chromedp", zap.String("message", fmt.Sprintf(format, args...)))
		}),
	)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	elapsed := time.Since(start)
	metrics.ObserveColdStart(elapsed)
	r.logger.Info("browser session started", zap.Duration("cold_start", elapsed))

	r.sess = &session{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}
	return r.sess, nil
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(r.cfg.UserAgent),
		chromedp.WindowSize(r.cfg.WindowWidth, r.cfg.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-plugins", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("aggressive-cache-discard", true),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if r.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

// acquire takes a render slot and returns an idle tab or opens a new one.
func (r *Renderer) acquire(ctx context.Context, sess *session) (*tab, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}

	for {
		select {
		case t := <-r.idle:
			if t.owner == sess && t.ctx.Err() == nil {
				return t, nil
			}
			t.cancel()
			continue
		default:
		}
		break
	}

	t, err := r.openTab(sess)
	if err != nil {
		<-r.slots
		return nil, err
	}
	return t, nil
}

func (r *Renderer) openTab(sess *session) (*tab, error) {
	tabCtx, cancel := chromedp.NewContext(sess.browserCtx)
	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	// The first Run attaches the target and binds its event loop to the
	// context it is given, so it must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach tab: %w", err)
	}
	setupCtx, setupCancel := context.WithTimeout(tabCtx, r.cfg.Timeout)
	defer setupCancel()
	if err := chromedp.Run(setupCtx, r.stealthAction()); err != nil {
		cancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &tab{ctx: tabCtx, cancel: cancel, meta: meta, owner: sess}, nil
}

// stealthAction installs the per-tab disguise: user agent, client-hint
// headers, CSP bypass and the webdriver mask.
func (r *Renderer) stealthAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		ua := emulation.SetUserAgentOverride(r.cfg.UserAgent)
		if lang := r.cfg.StealthHeaders["Accept-Language"]; lang != "" {
			ua = ua.WithAcceptLanguage(lang)
		}
		if err := ua.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if len(r.cfg.StealthHeaders) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(r.cfg.StealthHeaders)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if err := page.SetBypassCSP(true).Do(ctx); err != nil {
			return fmt.Errorf("bypass csp: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(StealthScript).Do(ctx); err != nil {
			return fmt.Errorf("add stealth script: %w", err)
		}
		return nil
	})
}

func (r *Renderer) release(t *tab, healthy bool) {
	defer func() { <-r.slots }()
	if !healthy || r.isClosed() {
		t.cancel()
		return
	}
	select {
	case r.idle <- t:
	default:
		t.cancel()
	}
}

func (r *Renderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close tears down idle tabs, the browser and the allocator. Each step runs
// even if an earlier one fails. Close is safe to call more than once; later
// calls return the first result.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		sess := r.sess
		r.sess = nil
		r.mu.Unlock()

		var errs []error
	drain:
		for {
			select {
			case t := <-r.idle:
				errs = append(errs, guard("tab", func() error {
					t.cancel()
					return nil
				}))
			default:
				break drain
			}
		}
		if sess != nil {
			errs = append(errs,
				guard("browser", func() error {
					err := chromedp.Cancel(sess.browserCtx)
					if err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				}),
				guard("browser context", func() error {
					sess.browserCancel()
					return nil
				}),
				guard("allocator", func() error {
					sess.allocCancel()
					return nil
				}),
			)
			r.logger.Info("browser session closed")
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}

// guard runs fn, converting a panic into an error so teardown continues.
func guard(step string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("close %s: panic: %v", step, rec)
		}
	}()
	if ferr := fn(); ferr != nil {
		return fmt.Errorf("close %s: %w", step, ferr)
	}
	return nil
}

// forwardCancel cancels the render when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
