package headless

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
)

// ErrRendererDisabled is returned by Open when rendering is turned off.
var ErrRendererDisabled = errors.New("renderer disabled")

// Open returns a browser-backed Renderer. When enabled is false it returns a
// Noop together with ErrRendererDisabled so callers can log the downgrade.
func Open(cfg Config, enabled bool, limiter *ratelimit.Limiter, logger *zap.Logger) (harvest.Renderer, error) {
	if !enabled {
		return NewNoop(), ErrRendererDisabled
	}
	return New(cfg, limiter, logger), nil
}

// Noop stands in for a Renderer when rendering is disabled. Every fetch
// yields nothing, so escalated items continue with empty content.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns nil.
func (Noop) Fetch(_ context.Context, _ string, _ time.Duration) []byte {
	return nil
}

// Close is a no-op.
func (Noop) Close() error {
	return nil
}
