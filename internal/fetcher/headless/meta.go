package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// responseMeta records the main document response of the current navigation.
// Only the first document response after reset is kept so challenge iframes
// do not overwrite the page status.
type responseMeta struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
	ready   chan struct{}
}

func newResponseMeta() *responseMeta {
	return &responseMeta{ready: make(chan struct{})}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = 0
	m.headers = nil
	m.url = ""
	m.ready = make(chan struct{})
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = toHTTPHeader(event.Response.Headers)
	m.url = event.Response.URL
	close(m.ready)
}

// waitStatus returns the document status, waiting at most d for the response
// event to arrive. Zero means no response was seen.
func (m *responseMeta) waitStatus(ctx context.Context, d time.Duration) int {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-ctx.Done():
	}
	status, _, _ := m.snapshot()
	return status
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.headers.Clone(), m.url
}

func toHTTPHeader(src network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}

func toNetworkHeaders(h map[string]string) network.Headers {
	headers := network.Headers{}
	for key, value := range h {
		headers[key] = value
	}
	return headers
}
