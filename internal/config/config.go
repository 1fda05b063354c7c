// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/article-harvester/internal/extract"
	"github.com/JakeFAU/article-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/article-harvester/internal/fetcher/httpfetch"
	"github.com/JakeFAU/article-harvester/internal/logging"
	"github.com/JakeFAU/article-harvester/internal/pipeline"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/article-harvester/internal/quality"
	"github.com/JakeFAU/article-harvester/internal/sink"
	"github.com/JakeFAU/article-harvester/internal/source"
	"github.com/JakeFAU/article-harvester/internal/storage/postgres"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_HTTP_TIMEOUT=20s.
const EnvPrefix = "HARVESTER"

// Output backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   logging.Config        `mapstructure:"logging"`
	Server    ServerConfig          `mapstructure:"server"`
	RateLimit RateLimitConfig       `mapstructure:"ratelimit"`
	HTTP      HTTPConfig            `mapstructure:"http"`
	Render    RenderConfig          `mapstructure:"render"`
	Pipeline  PipelineConfig        `mapstructure:"pipeline"`
	Quality   quality.Markers       `mapstructure:"quality"`
	Extract   extract.Config        `mapstructure:"extract"`
	Output    OutputConfig          `mapstructure:"output"`
	DB        postgres.Config       `mapstructure:"db"`
	PubSub    PubSubConfig          `mapstructure:"pubsub"`
	Discover  source.DiscoverConfig `mapstructure:"discover"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// MaxURLs caps the URLs accepted by one extract request.
	MaxURLs int `mapstructure:"max_urls"`
	// APIKey, when set, is required on /v1 requests.
	APIKey string `mapstructure:"api_key"`
}

// RateLimitConfig sets the per-domain spacing shared by both fetch tiers.
type RateLimitConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Disabled bool          `mapstructure:"disabled"`
}

// HTTPConfig configures the plain HTTP tier.
type HTTPConfig struct {
	Timeout      time.Duration           `mapstructure:"timeout"`
	MaxBodyBytes int64                   `mapstructure:"max_body_bytes"`
	AntiBot      httpfetch.AntiBotConfig `mapstructure:"antibot"`
}

// RenderConfig configures the browser tier.
type RenderConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxParallel      int           `mapstructure:"max_parallel"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout"`
	DOMReadyTimeout  time.Duration `mapstructure:"dom_ready_timeout"`
	ExecPath         string        `mapstructure:"exec_path"`
	Headful          bool          `mapstructure:"headful"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// PipelineConfig sizes the stages and holds the routing lists.
type PipelineConfig struct {
	HTTPConcurrency int      `mapstructure:"http_concurrency"`
	RenderWorkers   int      `mapstructure:"render_workers"`
	QueueSize       int      `mapstructure:"queue_size"`
	SkipDomains     []string `mapstructure:"skip_domains"`
	JSHeavyDomains  []string `mapstructure:"js_heavy_domains"`
}

// OutputConfig selects where documents are written.
type OutputConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// Notification backends.
const (
	PublisherGCP    = "gcp"
	PublisherMemory = "memory"
)

// PubSubConfig selects where document.extracted notifications go. The gcp
// backend publishes only when ProjectID is set; the memory backend keeps
// events in process.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_urls", 50)
	v.SetDefault("ratelimit.interval", ratelimit.DefaultInterval.String())
	v.SetDefault("ratelimit.disabled", false)
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.timeout", "10s")
	v.SetDefault("render.challenge_timeout", "8s")
	v.SetDefault("render.dom_ready_timeout", "1s")
	v.SetDefault("pipeline.http_concurrency", 8)
	v.SetDefault("pipeline.render_workers", 1)
	v.SetDefault("pipeline.queue_size", 64)
	v.SetDefault("pipeline.skip_domains", pipeline.DefaultSkipDomains())
	v.SetDefault("pipeline.js_heavy_domains", pipeline.DefaultJSHeavyDomains())
	v.SetDefault("extract.min_content_chars", 50)
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.dir", "data/documents")
	v.SetDefault("output.prefix", "documents")
	v.SetDefault("output.content_type", "text/markdown; charset=utf-8")
	v.SetDefault("db.table", "documents")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.backend", PublisherGCP)
	v.SetDefault("pubsub.topic", "document-extracted")
	v.SetDefault("discover.max_depth", 1)
	v.SetDefault("discover.max_links", 100)
	v.SetDefault("discover.link_selector", "a[href]")
	v.SetDefault("discover.parallelism", 2)
	v.SetDefault("discover.delay", "1s")
	v.SetDefault("discover.timeout", "15s")
	v.SetDefault("discover.respect_robots", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxURLs <= 0 {
		return fmt.Errorf("server.max_urls must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("render.timeout must be > 0")
	}
	if c.Render.Enabled && (c.Render.MaxParallel < 1 || c.Render.MaxParallel > 3) {
		return fmt.Errorf("render.max_parallel must be between 1 and 3 when rendering is enabled")
	}
	if c.Pipeline.HTTPConcurrency <= 0 {
		return fmt.Errorf("pipeline.http_concurrency must be > 0")
	}
	if c.Pipeline.RenderWorkers <= 0 {
		return fmt.Errorf("pipeline.render_workers must be > 0")
	}
	if c.RateLimit.Interval < 0 {
		return fmt.Errorf("ratelimit.interval must be >= 0")
	}
	switch c.Output.Backend {
	case BackendLocal:
		if c.Output.Dir == "" {
			return fmt.Errorf("output.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Output.GCSBucket == "" {
			return fmt.Errorf("output.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("output.backend must be one of local, gcs, memory; got %q", c.Output.Backend)
	}
	switch c.PubSub.Backend {
	case PublisherGCP:
		if c.PubSub.ProjectID != "" && c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is set")
		}
	case PublisherMemory:
		if c.PubSub.Topic == "" {
			return fmt.Errorf("pubsub.topic must be set for the memory backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be one of gcp, memory; got %q", c.PubSub.Backend)
	}
	return nil
}

// RateLimiter converts the rate limit section.
func (c Config) RateLimiter() ratelimit.Config {
	return ratelimit.Config{Interval: c.RateLimit.Interval}
}

// HTTPFetcher converts the HTTP section.
func (c Config) HTTPFetcher() httpfetch.Config {
	return httpfetch.Config{
		Timeout:      c.HTTP.Timeout,
		MaxBodyBytes: c.HTTP.MaxBodyBytes,
		AntiBot:      c.HTTP.AntiBot,
	}
}

// Renderer converts the render section.
func (c Config) Renderer() headless.Config {
	return headless.Config{
		MaxParallel:      c.Render.MaxParallel,
		UserAgent:        c.Render.UserAgent,
		Timeout:          c.Render.Timeout,
		ChallengeTimeout: c.Render.ChallengeTimeout,
		DOMReadyTimeout:  c.Render.DOMReadyTimeout,
		ExecPath:         c.Render.ExecPath,
		Headful:          c.Render.Headful,
	}
}

// Orchestrator converts the routing parts of the pipeline section.
func (c Config) Orchestrator() pipeline.Config {
	return pipeline.Config{
		SkipDomains:      c.Pipeline.SkipDomains,
		JSHeavyDomains:   c.Pipeline.JSHeavyDomains,
		HTTPTimeout:      c.HTTP.Timeout,
		RenderTimeout:    c.Render.Timeout,
		DisableRateLimit: c.RateLimit.Disabled,
	}
}

// Runner converts the sizing parts of the pipeline section.
func (c Config) Runner() pipeline.RunnerConfig {
	return pipeline.RunnerConfig{
		HTTPConcurrency: c.Pipeline.HTTPConcurrency,
		RenderWorkers:   c.Pipeline.RenderWorkers,
		QueueSize:       c.Pipeline.QueueSize,
	}
}

// Sink converts the output and pubsub sections.
func (c Config) Sink() sink.Config {
	return sink.Config{
		PathPrefix:  c.Output.Prefix,
		Topic:       c.PubSub.Topic,
		ContentType: c.Output.ContentType,
	}
}
