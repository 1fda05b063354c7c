package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"www prefix", "https://www.example.com/path", "example.com"},
		{"nested subdomains", "https://sub.sub.example.com/a/b", "example.com"},
		{"port", "http://example.com:8080/", "example.com"},
		{"compound tld", "https://news.example.co.uk/story", "example.co.uk"},
		{"upper case", "HTTPS://Blog.Example.COM", "example.com"},
		{"ipv4 literal", "http://192.168.0.1/index.html", Unknown},
		{"ipv6 literal", "http://[::1]:8080/", Unknown},
		{"no scheme", "example.com/path", Unknown},
		{"ftp scheme", "ftp://example.com/file", Unknown},
		{"single label", "http://localhost:3000", Unknown},
		{"garbage", "http://%zz", Unknown},
		{"empty", "", Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Extract(tc.url))
		})
	}
}

func TestHost(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "www.example.com", Host("https://WWW.Example.com./x"))
	assert.Empty(t, Host("mailto:someone@example.com"))
}

func TestMatcher(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]string{"x.com", "*.vercel.app", ".ghost.io", "=exact.example.org", " ", "X.com"})
	assert.Equal(t, 4, m.Len())

	tests := []struct {
		host string
		want bool
	}{
		{"x.com", true},
		{"www.x.com", true},
		{"netflix.com", false},
		{"myapp.vercel.app", true},
		{"vercel.app", true},
		{"blog.ghost.io", true},
		{"exact.example.org", true},
		{"sub.exact.example.org", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, m.Match(tc.host), tc.host)
	}

	assert.True(t, m.MatchURL("https://www.x.com/status/1"))
	assert.False(t, m.MatchURL("not a url"))

	var nilMatcher *Matcher
	assert.False(t, nilMatcher.Match("x.com"))
	assert.Zero(t, nilMatcher.Len())
}
