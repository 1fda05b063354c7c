// Package domain derives registrable domains from URLs and matches them
// against configured domain lists.
package domain

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Unknown is returned for URLs whose domain cannot be determined. Rate limiting
// treats it as a no-op bucket.
const Unknown = "unknown"

// Extract returns the registrable domain (eTLD+1) of rawURL, so
// "https://a.b.example.co.uk/x" yields "example.co.uk". IP literals, URLs
// without an http(s) scheme and unparseable input yield Unknown.
func Extract(rawURL string) string {
	host := Host(rawURL)
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return Unknown
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return Unknown
	}
	return registrable
}

// Host returns the lower-cased hostname of an http(s) URL, or "" when rawURL
// is not one.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}
