package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/config"
	"github.com/JakeFAU/article-harvester/internal/harvest"
	memorypublisher "github.com/JakeFAU/article-harvester/internal/publisher/memory"
	"github.com/JakeFAU/article-harvester/internal/sink"
	"github.com/JakeFAU/article-harvester/internal/source"
	"github.com/JakeFAU/article-harvester/internal/storage/memory"
)

func articlePage() string {
	var b strings.Builder
	b.WriteString(`<!doctype html><html><head><title>Local Post</title>`)
	b.WriteString(`<meta property="og:title" content="Local Post"></head><body><nav>menu</nav><article><h1>Local Post</h1>`)
	for i := 0; i < 5; i++ {
		b.WriteString("<p>")
		b.WriteString(strings.Repeat("A plain sentence with enough words to count. ", 6))
		b.WriteString("</p>")
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage()))
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("cf-ray", "123")
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Output.Backend = config.BackendMemory
	cfg.Render.Enabled = false
	cfg.RateLimit.Disabled = true
	return cfg
}

func build(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestHarvestStoresOneDocumentPerRecord(t *testing.T) {
	site := newSite(t)
	a := build(t, testConfig(t))

	var mu sync.Mutex
	var outcomes []Outcome
	sum := a.Harvest(context.Background(), []source.Record{
		{URL: site.URL + "/post", Metadata: map[string]string{"issue": "12"}},
		{URL: site.URL + "/blocked"},
	}, func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	})

	assert.Equal(t, Summary{Total: 2, Placeholders: 1}, sum)
	require.Len(t, outcomes, 2)

	byURL := map[string]Outcome{}
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		byURL[o.Document.URL] = o
	}

	post := byURL[site.URL+"/post"]
	assert.Equal(t, harvest.TierHTTP, post.Document.Tier)
	assert.False(t, post.Document.Placeholder)
	assert.Equal(t, "Local Post", post.Document.Title)
	assert.Equal(t, "12", post.Document.Metadata["issue"])
	assert.NotEmpty(t, post.Document.ContentHash)
	assert.True(t, strings.HasPrefix(post.Result.BlobURI, "memory://documents/"))

	blocked := byURL[site.URL+"/blocked"]
	assert.Equal(t, harvest.TierRender, blocked.Document.Tier)
	assert.True(t, blocked.Document.Placeholder)

	blobs, ok := a.Blobs().(*memory.BlobStore)
	require.True(t, ok)
	assert.Len(t, blobs.Paths(), 2)
	assert.Len(t, a.Documents().List(), 2)
}

func TestInterruptLeavesSinksOpenForDraining(t *testing.T) {
	site := newSite(t)
	a := build(t, testConfig(t))
	sinkClosed := false
	a.Closers().Register("sink-side", func() error { sinkClosed = true; return nil })

	require.NoError(t, a.Closers().Interrupt())
	assert.False(t, sinkClosed)

	sum := a.Harvest(context.Background(), []source.Record{
		{URL: site.URL + "/post"},
		{URL: site.URL + "/blocked"},
	}, nil)
	assert.Equal(t, Summary{Total: 2, Placeholders: 1}, sum)
	assert.False(t, sinkClosed)

	require.NoError(t, a.Close())
	assert.True(t, sinkClosed)
}

func TestMemoryPublisherBackendRecordsEvents(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t)
	cfg.PubSub.Backend = config.PublisherMemory
	a := build(t, cfg)

	sum := a.Harvest(context.Background(), []source.Record{{URL: site.URL + "/post"}}, nil)
	assert.Equal(t, Summary{Total: 1}, sum)

	events, ok := a.Publisher().(*memorypublisher.Publisher)
	require.True(t, ok)
	msgs := events.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "document-extracted", msgs[0].Topic)
	event, ok := msgs[0].Payload.(sink.Event)
	require.True(t, ok)
	assert.Equal(t, sink.EventDocumentExtracted, event.Event)
	assert.Equal(t, site.URL+"/post", event.URL)
}

func TestDefaultConfigPublishesNothing(t *testing.T) {
	a := build(t, testConfig(t))
	assert.Nil(t, a.Publisher())
}

func TestHarvestCanceledStillReportsAcceptedItems(t *testing.T) {
	a := build(t, testConfig(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := a.Harvest(ctx, []source.Record{{URL: "https://example.invalid/a"}}, nil)
	assert.LessOrEqual(t, sum.Total, 1)
	assert.Equal(t, sum.Total, sum.Placeholders)
}

func TestAPIServerExtractsPostedURLs(t *testing.T) {
	site := newSite(t)
	a := build(t, testConfig(t))

	body, err := json.Marshal(map[string]any{"urls": []string{site.URL + "/post"}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/extract", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Documents []struct {
			URL      string `json:"url"`
			Markdown string `json:"markdown"`
			BlobURI  string `json:"blob_uri"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Contains(t, resp.Documents[0].Markdown, "# Local Post")
	assert.NotContains(t, resp.Documents[0].Markdown, "menu")
	assert.NotEmpty(t, resp.Documents[0].BlobURI)
}

func TestBuildLocalBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Backend = config.BackendLocal
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	a := build(t, cfg)
	assert.NoError(t, a.Ready(context.Background()))
	assert.NotNil(t, a.Discoverer())
	assert.NotNil(t, a.Sink())
}

func TestBuildFailsOnBadDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB.DSN = "::not a dsn::"
	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "document store init failed")
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second
	a := build(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
