package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadRecords(t *testing.T) {
	input := strings.Join([]string{
		"# issue 42",
		"https://example.com/a",
		"",
		`{"url": "https://example.org/b", "metadata": {"title": "B", "issue": "42"}}`,
		"  https://example.net/c  ",
	}, "\n")

	records, err := ReadRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "https://example.com/a", records[0].URL)
	assert.Equal(t, "https://example.org/b", records[1].URL)
	assert.Equal(t, map[string]string{"title": "B", "issue": "42"}, records[1].Metadata)
	assert.Equal(t, "https://example.net/c", records[2].URL)

	item := records[1].Item()
	assert.Equal(t, "https://example.org/b", item.URL)
	assert.Equal(t, "B", item.Metadata["title"])
}

func TestReadRecordsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", "https://example.com/\n{\"url\":", "line 2: decode record"},
		{"bad scheme", "ftp://example.com/file", "line 1: url \"ftp://example.com/file\": scheme must be http or https"},
		{"missing url", `{"metadata": {"a": "b"}}`, "line 1: empty url"},
		{"no host", "https:///path", "missing host"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadRecords(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestFromURLs(t *testing.T) {
	records, err := FromURLs([]string{"https://example.com/a", " https://example.com/b "})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", records[1].URL)

	_, err = FromURLs([]string{""})
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a href="/a">First   article</a>
			<a href="/b">Second</a>
			<a href="/a">Duplicate</a>
			<a href="https://elsewhere.example/x">External</a>
			<a href="mailto:editor@example.com">Mail</a>
		</body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/c">Deeper</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>No links</p></body></html>`)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>Leaf</p></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func urlsOf(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.URL)
	}
	return out
}

func TestDiscoverSeedPageOnly(t *testing.T) {
	srv := newSite(t)
	d, err := NewDiscoverer(DiscoverConfig{Delay: time.Millisecond}, nil, zap.NewNop())
	require.NoError(t, err)

	records, err := d.Discover(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, urlsOf(records))
	assert.Equal(t, "First article", records[0].Metadata["anchor_text"])
	assert.Equal(t, srv.URL+"/", records[0].Metadata["discovered_from"])
}

func TestDiscoverFollowsToDepth(t *testing.T) {
	srv := newSite(t)
	d, err := NewDiscoverer(DiscoverConfig{MaxDepth: 2, Delay: time.Millisecond}, nil, zap.NewNop())
	require.NoError(t, err)

	records, err := d.Discover(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}, urlsOf(records))
}

func TestDiscoverFiltersAndLimits(t *testing.T) {
	srv := newSite(t)

	d, err := NewDiscoverer(DiscoverConfig{URLFilters: []string{`/b$`}, Delay: time.Millisecond}, nil, zap.NewNop())
	require.NoError(t, err)
	records, err := d.Discover(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/b"}, urlsOf(records))

	d, err = NewDiscoverer(DiscoverConfig{MaxLinks: 1, Delay: time.Millisecond}, nil, zap.NewNop())
	require.NoError(t, err)
	records, err = d.Discover(context.Background(), []string{srv.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/a"}, urlsOf(records))
}

func TestNewDiscovererRejectsBadFilter(t *testing.T) {
	_, err := NewDiscoverer(DiscoverConfig{URLFilters: []string{"("}}, nil, zap.NewNop())
	require.Error(t, err)
}
