package domain

import "strings"

// Matcher reports whether a host belongs to one of a fixed set of domains.
// A plain entry such as "youtube.com" matches the domain and every subdomain;
// "=example.com" matches the exact host only. A leading "*." or "." is accepted
// for compatibility and means the same as a plain entry.
type Matcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewMatcher builds a Matcher from configured patterns. Blank patterns are ignored.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
			continue
		case strings.HasPrefix(value, "="):
			if host := strings.TrimPrefix(value, "="); host != "" {
				m.exact[host] = struct{}{}
			}
		default:
			value = strings.TrimPrefix(value, "*")
			value = strings.TrimPrefix(value, ".")
			if value != "" {
				m.addSuffix(value)
			}
		}
	}
	return m
}

func (m *Matcher) addSuffix(suffix string) {
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// Match reports whether host is covered by the matcher.
func (m *Matcher) Match(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// MatchURL reports whether the host of rawURL is covered by the matcher.
func (m *Matcher) MatchURL(rawURL string) bool {
	return m.Match(Host(rawURL))
}

// Len returns the number of configured patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.exact) + len(m.suffixes)
}
