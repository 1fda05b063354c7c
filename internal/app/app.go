// Package app builds and holds the long-lived services of the harvester,
// acting as its dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/clock/system"
	"github.com/JakeFAU/article-harvester/internal/config"
	"github.com/JakeFAU/article-harvester/internal/extract"
	"github.com/JakeFAU/article-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/article-harvester/internal/fetcher/httpfetch"
	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/hash/sha256"
	"github.com/JakeFAU/article-harvester/internal/id/uuid"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/pipeline"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/article-harvester/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/article-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/article-harvester/internal/quality"
	"github.com/JakeFAU/article-harvester/internal/shutdown"
	"github.com/JakeFAU/article-harvester/internal/sink"
	"github.com/JakeFAU/article-harvester/internal/source"
	gcsstorage "github.com/JakeFAU/article-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/article-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/article-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/article-harvester/internal/storage/postgres"
	"github.com/JakeFAU/article-harvester/internal/telemetry"
)

const serviceName = "article-harvester"

// App contains the application's dependencies.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	closers    *shutdown.Registry
	renderer   harvest.Renderer
	runner     *pipeline.Runner
	blobs      harvest.BlobStore
	documents  *memorystorage.DocumentIndex
	docStore   *pgstore.DocumentStore
	publisher  harvest.Publisher
	sink       *sink.Sink
	discoverer *source.Discoverer
}

// Build creates the application's dependencies. On error everything built so
// far is closed before returning.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		closers:   shutdown.New(logger.Named("shutdown")),
		documents: memorystorage.NewDocumentIndex(),
	}
	defer func() {
		if err != nil {
			if closeErr := a.closers.Close(); closeErr != nil {
				logger.Warn("cleanup after failed build", zap.Error(closeErr))
			}
		}
	}()

	metrics.Init()
	tp, err := telemetry.InitTracerProvider(ctx, serviceName, 1)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	a.closers.Register("tracer", func() error { return tp.Shutdown(context.Background()) })

	a.logger.Info("building application dependencies")
	if err = a.setupPipeline(); err != nil {
		return nil, err
	}
	if a.blobs, err = a.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = a.setupDatabase(ctx); err != nil {
		return nil, err
	}
	if a.publisher, err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}

	var index harvest.DocumentIndex = a.documents
	if a.docStore != nil {
		index = sink.Indexes(a.documents, a.docStore)
	}
	if a.sink, err = sink.New(cfg.Sink(), a.blobs, index, a.publisher, logger.Named("sink")); err != nil {
		return nil, fmt.Errorf("sink init failed: %w", err)
	}

	if a.discoverer, err = source.NewDiscoverer(cfg.Discover, nil, logger.Named("discover")); err != nil {
		return nil, fmt.Errorf("discoverer init failed: %w", err)
	}
	return a, nil
}

func (a *App) setupPipeline() error {
	limiter := ratelimit.New(a.cfg.RateLimiter())
	classifier, err := quality.New(a.cfg.Quality)
	if err != nil {
		return fmt.Errorf("quality classifier init failed: %w", err)
	}
	httpFetcher := httpfetch.New(a.cfg.HTTPFetcher(), limiter, classifier, a.logger.Named("http"))

	a.renderer, err = headless.Open(a.cfg.Renderer(), a.cfg.Render.Enabled, limiter, a.logger.Named("render"))
	switch {
	case errors.Is(err, headless.ErrRendererDisabled):
		a.logger.Warn("rendering disabled; escalated pages will get placeholder documents")
	case err != nil:
		return fmt.Errorf("renderer init failed: %w", err)
	default:
		a.logger.Info("rendering enabled", zap.Int("max_parallel", a.cfg.Render.MaxParallel))
	}
	a.closers.RegisterOnSignal("renderer", a.renderer.Close)

	orch := pipeline.NewOrchestrator(a.cfg.Orchestrator(), httpFetcher, a.renderer, a.logger.Named("orchestrator"))
	extractor := extract.New(a.cfg.Extract, a.logger.Named("extract"))
	a.runner = pipeline.NewRunner(
		a.cfg.Runner(),
		orch,
		extractor,
		uuid.New(),
		sha256.New(),
		system.New(),
		a.logger.Named("pipeline"),
	)
	a.logger.Info("pipeline config",
		zap.Int("http_concurrency", a.cfg.Pipeline.HTTPConcurrency),
		zap.Int("render_workers", a.cfg.Pipeline.RenderWorkers),
		zap.Duration("rate_limit_interval", limiter.Interval()),
		zap.Bool("rate_limit_disabled", a.cfg.RateLimit.Disabled),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context) (harvest.BlobStore, error) {
	switch a.cfg.Output.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Output.GCSBucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Output.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.closers.Register("gcs", blobStore.Close)
		return blobStore, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Output.Dir))
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Output.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no DSN configured; documents are not indexed in postgres")
		return nil
	}
	store, err := pgstore.New(ctx, a.cfg.DB)
	if err != nil {
		return fmt.Errorf("document store init failed: %w", err)
	}
	a.docStore = store
	a.closers.Register("postgres", func() error {
		store.Close()
		return nil
	})
	a.logger.Info("document store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (harvest.Publisher, error) {
	if a.cfg.PubSub.Backend == config.PublisherMemory {
		a.logger.Info("document events kept in memory", zap.String("topic", a.cfg.PubSub.Topic))
		return memorypublisher.New(), nil
	}
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured; document events are not published")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	publisher := gcppublisher.New(client)
	a.closers.Register("pubsub", publisher.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return publisher, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Sink returns the document sink.
func (a *App) Sink() *sink.Sink { return a.sink }

// Publisher returns the document event publisher, or nil when events are
// not published.
func (a *App) Publisher() harvest.Publisher { return a.publisher }

// Blobs returns the configured blob store.
func (a *App) Blobs() harvest.BlobStore { return a.blobs }

// Documents returns the in-process index of documents written by this app.
func (a *App) Documents() *memorystorage.DocumentIndex { return a.documents }

// Discoverer returns the link discoverer.
func (a *App) Discoverer() *source.Discoverer { return a.discoverer }

// Closers exposes the shutdown registry so callers can hook it to signals.
func (a *App) Closers() *shutdown.Registry { return a.closers }

// Ready reports whether downstream dependencies are reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.docStore != nil {
		if err := a.docStore.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every resource exactly once and flushes the logger.
func (a *App) Close() error {
	err := a.closers.Close()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}
