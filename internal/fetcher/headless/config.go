package headless

import (
	"net/http"
	"time"
)

// BrowserUserAgent is the user agent presented by rendered sessions.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36"

// StealthScript hides the most common automation marker from page scripts.
const StealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const (
	defaultTimeout          = 10 * time.Second
	defaultChallengeTimeout = 8 * time.Second
	defaultDOMReadyTimeout  = time.Second
	defaultStatusWait       = 500 * time.Millisecond
	maxParallel             = 3
)

// Config controls the rendering fetcher.
type Config struct {
	// MaxParallel is the number of tabs rendering at once, clamped to [1,3].
	MaxParallel int
	UserAgent   string
	// Timeout bounds one fetch when the caller passes no timeout.
	Timeout time.Duration
	// ChallengeTimeout bounds the wait for an anti-bot challenge to clear.
	ChallengeTimeout time.Duration
	// DOMReadyTimeout bounds the wait for the document to become interactive.
	DOMReadyTimeout    time.Duration
	ExecPath           string
	Headful            bool
	WindowWidth        int
	WindowHeight       int
	StealthHeaders     map[string]string
	ChallengeSelectors []string
	ChallengeStatuses  []int
}

// DefaultStealthHeaders returns the client-hint headers sent with every navigation.
func DefaultStealthHeaders() map[string]string {
	return map[string]string{
		"Accept-Language":    "en-US,en;q=0.9",
		"DNT":                "1",
		"Sec-Ch-Ua":          `"Chromium";v="120", "Google Chrome";v="120"`,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": `"Windows"`,
	}
}

// DefaultChallengeSelectors returns the DOM markers of an anti-bot interstitial.
func DefaultChallengeSelectors() []string {
	return []string{"iframe[src*='challenges']", "#challenge-form"}
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.MaxParallel > maxParallel {
		c.MaxParallel = maxParallel
	}
	if c.UserAgent == "" {
		c.UserAgent = BrowserUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.ChallengeTimeout <= 0 {
		c.ChallengeTimeout = defaultChallengeTimeout
	}
	if c.DOMReadyTimeout <= 0 {
		c.DOMReadyTimeout = defaultDOMReadyTimeout
	}
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = 1280, 800
	}
	if c.StealthHeaders == nil {
		c.StealthHeaders = DefaultStealthHeaders()
	}
	if c.ChallengeSelectors == nil {
		c.ChallengeSelectors = DefaultChallengeSelectors()
	}
	if c.ChallengeStatuses == nil {
		c.ChallengeStatuses = []int{http.StatusForbidden, http.StatusServiceUnavailable}
	}
	return c
}

func (c Config) isChallengeStatus(status int) bool {
	for _, s := range c.ChallengeStatuses {
		if s == status {
			return true
		}
	}
	return false
}
