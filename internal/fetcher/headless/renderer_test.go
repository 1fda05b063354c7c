package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 1, cfg.MaxParallel)
	assert.Equal(t, BrowserUserAgent, cfg.UserAgent)
	assert.Equal(t, defaultTimeout, cfg.Timeout)
	assert.Equal(t, defaultChallengeTimeout, cfg.ChallengeTimeout)
	assert.Equal(t, defaultDOMReadyTimeout, cfg.DOMReadyTimeout)
	assert.Equal(t, 1280, cfg.WindowWidth)
	assert.Equal(t, 800, cfg.WindowHeight)
	assert.Equal(t, "en-US,en;q=0.9", cfg.StealthHeaders["Accept-Language"])
	assert.Equal(t, DefaultChallengeSelectors(), cfg.ChallengeSelectors)
	assert.True(t, cfg.isChallengeStatus(http.StatusForbidden))
	assert.True(t, cfg.isChallengeStatus(http.StatusServiceUnavailable))
	assert.False(t, cfg.isChallengeStatus(http.StatusOK))
}

func TestConfigClampsParallelism(t *testing.T) {
	assert.Equal(t, maxParallel, Config{MaxParallel: 10}.withDefaults().MaxParallel)
	assert.Equal(t, 2, Config{MaxParallel: 2}.withDefaults().MaxParallel)
}

func documentResponse(status int64, url string) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			URL:     url,
			Status:  status,
			Headers: network.Headers{"cf-ray": "abc", "Set-Cookie": []interface{}{"a=1", "b=2"}},
		},
	}
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	meta.captureEvent(documentResponse(403, "https://example.com/"))
	meta.captureEvent(documentResponse(200, "https://challenges.example.com/frame"))

	status, headers, url := meta.snapshot()
	assert.Equal(t, 403, status)
	assert.Equal(t, "https://example.com/", url)
	assert.Equal(t, "abc", headers.Get("cf-ray"))
	assert.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))

	meta.reset()
	status, headers, _ = meta.snapshot()
	assert.Zero(t, status)
	assert.Empty(t, headers)

	meta.captureEvent(documentResponse(200, "https://example.com/next"))
	status, _, _ = meta.snapshot()
	assert.Equal(t, 200, status)
}

func TestResponseMetaWaitStatus(t *testing.T) {
	t.Run("returns once captured", func(t *testing.T) {
		meta := newResponseMeta()
		go func() {
			time.Sleep(10 * time.Millisecond)
			meta.capture(documentResponse(503, "https://example.com/"))
		}()
		assert.Equal(t, 503, meta.waitStatus(context.Background(), time.Second))
	})

	t.Run("zero when nothing arrives", func(t *testing.T) {
		meta := newResponseMeta()
		start := time.Now()
		assert.Zero(t, meta.waitStatus(context.Background(), 20*time.Millisecond))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("honors context", func(t *testing.T) {
		meta := newResponseMeta()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Zero(t, meta.waitStatus(ctx, time.Minute))
	})
}

func TestToNetworkHeaders(t *testing.T) {
	headers := toNetworkHeaders(map[string]string{"DNT": "1"})
	assert.Equal(t, network.Headers{"DNT": "1"}, headers)
}

func TestRendererCloseIsIdempotent(t *testing.T) {
	r := New(Config{}, nil, zap.NewNop())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, r.isClosed())
}

func TestRendererFetchAfterCloseReturnsNil(t *testing.T) {
	r := New(Config{}, nil, zap.NewNop())
	require.NoError(t, r.Close())
	assert.Nil(t, r.Fetch(context.Background(), "https://example.com/", time.Second))
}

func TestGuardRecoversPanics(t *testing.T) {
	err := guard("step", func() error { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close step: panic: boom")
	assert.NoError(t, guard("step", func() error { return nil }))
}

func TestForwardCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()
	cancelParent()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context was not canceled")
	}
}

func TestNoop(t *testing.T) {
	n := NewNoop()
	assert.Nil(t, n.Fetch(context.Background(), "https://example.com/", time.Second))
	assert.NoError(t, n.Close())
}

func TestOpen(t *testing.T) {
	r, err := Open(Config{}, false, nil, zap.NewNop())
	require.ErrorIs(t, err, ErrRendererDisabled)
	assert.IsType(t, &Noop{}, r)

	r, err = Open(Config{}, true, nil, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &Renderer{}, r)
	// No browser is launched until the first fetch.
	assert.NoError(t, r.Close())
}
