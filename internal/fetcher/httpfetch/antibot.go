package httpfetch

import (
	"net/http"
	"strings"
)

// AntiBotConfig lists the signals that mark a response as an anti-bot block.
type AntiBotConfig struct {
	Statuses []int    `mapstructure:"statuses"`
	Headers  []string `mapstructure:"headers"`
	Phrases  []string `mapstructure:"phrases"`
}

// DefaultAntiBot returns the stock anti-bot signals.
func DefaultAntiBot() AntiBotConfig {
	return AntiBotConfig{
		Statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable, http.StatusTooManyRequests},
		Headers: []string{
			"cf-ray",
			"cf-cache-status",
			"cf-request-id",
			"cf-bgj",
			"cf-polished",
			"cf-mitigated",
		},
		Phrases: []string{
			"cloudflare",
			"checking your browser",
			"ddos protection",
			"enable javascript",
			"browser check",
			"security check",
			"cf-browser-verification",
			"challenge-platform",
		},
	}
}

func (c AntiBotConfig) withDefaults() AntiBotConfig {
	def := DefaultAntiBot()
	if c.Statuses == nil {
		c.Statuses = def.Statuses
	}
	if c.Headers == nil {
		c.Headers = def.Headers
	}
	if c.Phrases == nil {
		c.Phrases = def.Phrases
	}
	phrases := make([]string, 0, len(c.Phrases))
	for _, p := range c.Phrases {
		phrases = append(phrases, strings.ToLower(p))
	}
	c.Phrases = phrases
	return c
}

// IsBlockedByAntiBot reports whether resp looks like an anti-bot interstitial:
// a blocking status, a known anti-bot header, or a known challenge phrase in
// the body.
func (f *Fetcher) IsBlockedByAntiBot(resp *Response) bool {
	if resp == nil {
		return false
	}
	for _, status := range f.antiBot.Statuses {
		if resp.StatusCode == status {
			return true
		}
	}
	for _, name := range f.antiBot.Headers {
		if _, ok := resp.Header[http.CanonicalHeaderKey(name)]; ok {
			return true
		}
	}
	body := strings.ToLower(strings.ToValidUTF8(string(resp.Body), ""))
	for _, phrase := range f.antiBot.Phrases {
		if phrase != "" && strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}
