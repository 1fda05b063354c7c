package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/queue/memory"
)

const (
	defaultHTTPConcurrency = 8
	defaultQueueSize       = 64

	stageHTTP   = "http"
	stageRender = "render"
)

// Extractor converts fetched bytes into a document.
type Extractor interface {
	Extract(url string, body []byte) harvest.Document
}

// RunnerConfig sizes the two stages independently.
type RunnerConfig struct {
	HTTPConcurrency int `mapstructure:"http_concurrency"`
	RenderWorkers   int `mapstructure:"render_workers"`
	QueueSize       int `mapstructure:"queue_size"`
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.HTTPConcurrency <= 0 {
		c.HTTPConcurrency = defaultHTTPConcurrency
	}
	if c.RenderWorkers <= 0 {
		c.RenderWorkers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// Runner drives items through both stages and the extractor. Every item that
// enters produces exactly one document.
type Runner struct {
	orch      *Orchestrator
	extractor Extractor
	ids       harvest.IDGenerator
	hasher    harvest.Hasher
	clock     harvest.Clock
	cfg       RunnerConfig
	logger    *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	cfg RunnerConfig,
	orch *Orchestrator,
	extractor Extractor,
	ids harvest.IDGenerator,
	hasher harvest.Hasher,
	clock harvest.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		orch:      orch,
		extractor: extractor,
		ids:       ids,
		hasher:    hasher,
		clock:     clock,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Run consumes in until it is closed and streams one document per item. The
// returned channel is closed after the last document; callers must drain it.
// Cancelling ctx makes outstanding fetches fail fast, but items already
// accepted still yield (placeholder) documents.
func (r *Runner) Run(ctx context.Context, in <-chan harvest.Item) <-chan harvest.Document {
	out := make(chan harvest.Document)
	escalated := memory.NewQueue(r.cfg.QueueSize)

	go func() {
		defer close(out)

		var renderers sync.WaitGroup
		for i := 0; i < r.cfg.RenderWorkers; i++ {
			renderers.Add(1)
			go func() {
				defer renderers.Done()
				r.renderLoop(ctx, escalated, out)
			}()
		}

		var g errgroup.Group
		g.SetLimit(r.cfg.HTTPConcurrency)
		for item := range in {
			g.Go(func() error {
				metrics.IncActiveWorkers(stageHTTP)
				defer metrics.DecActiveWorkers(stageHTTP)

				processed := r.orch.Process(ctx, item)
				if processed.Route != harvest.RouteNeedsRendering {
					out <- r.finish(processed)
					return nil
				}
				if err := escalated.Enqueue(ctx, processed); err != nil {
					r.logger.Warn("render queue unavailable, continuing with empty content",
						zap.String("url", processed.URL), zap.Error(err))
					processed.Content = nil
					processed.Tier = harvest.TierRender
					processed.Route = harvest.RouteComplete
					out <- r.finish(processed)
				}
				return nil
			})
		}
		_ = g.Wait()
		escalated.Close()
		renderers.Wait()
	}()
	return out
}

// renderLoop drains the queue until it is closed, even after ctx ends, so no
// escalated item is lost.
func (r *Runner) renderLoop(ctx context.Context, q *memory.Queue, out chan<- harvest.Document) {
	drainCtx := context.WithoutCancel(ctx)
	for {
		item, err := q.Dequeue(drainCtx)
		if err != nil {
			if !errors.Is(err, memory.ErrClosed) {
				r.logger.Error("render queue dequeue failed", zap.Error(err))
			}
			return
		}
		metrics.IncActiveWorkers(stageRender)
		rendered := r.orch.Render(ctx, item)
		metrics.DecActiveWorkers(stageRender)
		out <- r.finish(rendered)
	}
}

// RunAll runs items through the pipeline and collects the documents in
// completion order.
func (r *Runner) RunAll(ctx context.Context, items []harvest.Item) []harvest.Document {
	in := make(chan harvest.Item)
	go func() {
		defer close(in)
		for _, item := range items {
			in <- item
		}
	}()
	docs := make([]harvest.Document, 0, len(items))
	for doc := range r.Run(ctx, in) {
		docs = append(docs, doc)
	}
	return docs
}

// One runs a single item synchronously through both stages.
func (r *Runner) One(ctx context.Context, item harvest.Item) harvest.Document {
	processed := r.orch.Process(ctx, item)
	if processed.Route == harvest.RouteNeedsRendering {
		processed = r.orch.Render(ctx, processed)
	}
	return r.finish(processed)
}

// finish extracts the item and stamps identity and provenance on the result.
func (r *Runner) finish(item harvest.Item) harvest.Document {
	doc := r.extractor.Extract(item.URL, item.Content)
	doc.URL = item.URL
	doc.Metadata = harvest.CloneMetadata(item.Metadata)
	doc.Tier = item.Tier
	doc.Reason = item.Reason

	if r.ids != nil {
		id, err := r.ids.NewID()
		if err != nil {
			r.logger.Warn("document id generation failed", zap.String("url", item.URL), zap.Error(err))
		}
		doc.ID = id
	}
	if r.hasher != nil {
		sum, err := r.hasher.Hash([]byte(doc.Markdown))
		if err != nil {
			r.logger.Warn("content hash failed", zap.String("url", item.URL), zap.Error(err))
		}
		doc.ContentHash = sum
	}
	if r.clock != nil {
		doc.ExtractedAt = r.clock.Now()
	}
	metrics.ObserveDocument(string(doc.Tier), doc.Placeholder)
	return doc
}
