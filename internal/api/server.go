package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/sink"
	"github.com/JakeFAU/article-harvester/internal/source"
	"github.com/JakeFAU/article-harvester/internal/storage/memory"
)

const (
	defaultMaxURLs        = 50
	defaultRequestTimeout = 5 * time.Minute
	maxRequestBytes       = 1 << 20
)

// Runner turns items into documents, one per item.
type Runner interface {
	RunAll(ctx context.Context, items []harvest.Item) []harvest.Document
}

// Writer persists a document.
type Writer interface {
	Write(ctx context.Context, doc harvest.Document) (sink.Result, error)
}

// DocumentLister reads back documents the service has produced.
type DocumentLister interface {
	Get(id string) (memory.IndexedDocument, bool)
	List() []memory.IndexedDocument
}

// Options tunes request handling.
type Options struct {
	// MaxURLs caps the URLs accepted by one extract request.
	MaxURLs int
	// RequestTimeout bounds one extract request end to end.
	RequestTimeout time.Duration
	// APIKey, when set, is required on every /v1 request.
	APIKey string
	// Ready reports whether downstream dependencies are usable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the pipeline runner and sink.
type Server struct {
	router chi.Router
	runner Runner
	writer Writer
	docs   DocumentLister
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. writer and docs
// may be nil; documents are then returned but not persisted or listed.
func NewServer(runner Runner, writer Writer, docs DocumentLister, opts Options, logger *zap.Logger) *Server {
	if opts.MaxURLs <= 0 {
		opts.MaxURLs = defaultMaxURLs
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		writer: writer,
		docs:   docs,
		opts:   opts,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/extract", s.extract)
		r.Get("/documents", s.listDocuments)
		r.Get("/documents/{doc_id}", s.getDocument)
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "harvester.api")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type extractRequest struct {
	URLs    []string        `json:"urls"`
	Records []source.Record `json:"records"`
	// Persist defaults to true when a writer is configured.
	Persist *bool `json:"persist"`
}

type documentDTO struct {
	harvest.Document
	BlobURI string `json:"blob_uri,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	items, err := s.toItems(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	docs := s.runner.RunAll(ctx, items)
	persist := s.writer != nil && (req.Persist == nil || *req.Persist)
	out := make([]documentDTO, 0, len(docs))
	for _, doc := range docs {
		dto := documentDTO{Document: doc}
		if persist {
			res, err := s.writer.Write(context.WithoutCancel(ctx), doc)
			dto.BlobURI = res.BlobURI
			if err != nil {
				s.logger.Error("document write failed", zap.String("url", doc.URL), zap.Error(err))
				dto.Error = err.Error()
			}
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) toItems(req extractRequest) ([]harvest.Item, error) {
	records := make([]source.Record, 0, len(req.URLs)+len(req.Records))
	for _, u := range req.URLs {
		records = append(records, source.Record{URL: strings.TrimSpace(u)})
	}
	records = append(records, req.Records...)
	if len(records) == 0 {
		return nil, errors.New("urls required")
	}
	if len(records) > s.opts.MaxURLs {
		return nil, fmt.Errorf("at most %d urls per request", s.opts.MaxURLs)
	}
	items := make([]harvest.Item, 0, len(records))
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("url %d: %w", i, err)
		}
		items = append(items, rec.Item())
	}
	return items, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID assigned by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
