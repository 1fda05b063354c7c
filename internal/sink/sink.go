// Package sink persists extracted documents and announces them.
package sink

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/domain"
	"github.com/JakeFAU/article-harvester/internal/harvest"
)

// EventDocumentExtracted is the event type published for every stored document.
const EventDocumentExtracted = "document.extracted"

const (
	defaultPrefix      = "documents"
	defaultContentType = "text/markdown; charset=utf-8"
)

// Config controls where documents go.
type Config struct {
	// PathPrefix is the first path segment of every stored object.
	PathPrefix string `mapstructure:"path_prefix"`
	// Topic receives a document.extracted event per document when a
	// publisher is configured.
	Topic       string `mapstructure:"topic"`
	ContentType string `mapstructure:"content_type"`
}

// Event is the payload published after a document is stored.
type Event struct {
	Event       string            `json:"event"`
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	BlobURI     string            `json:"blob_uri"`
	Tier        harvest.Tier      `json:"tier"`
	Placeholder bool              `json:"placeholder"`
	ContentHash string            `json:"content_hash,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// Result reports where a document ended up.
type Result struct {
	BlobURI   string
	MessageID string
}

// Sink writes the rendered document to a blob store, then optionally indexes
// it and publishes an event.
type Sink struct {
	blobs     harvest.BlobStore
	index     harvest.DocumentIndex
	publisher harvest.Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Sink. index and publisher may be nil.
func New(cfg Config, blobs harvest.BlobStore, index harvest.DocumentIndex, publisher harvest.Publisher, logger *zap.Logger) (*Sink, error) {
	if blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if publisher != nil && cfg.Topic == "" {
		return nil, errors.New("topic is required when publishing")
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = defaultPrefix
	}
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{blobs: blobs, index: index, publisher: publisher, cfg: cfg, logger: logger}, nil
}

// Write stores doc. A failed blob write is returned immediately; index and
// publish failures are returned together after both have been attempted, and
// the result still carries the blob URI.
func (s *Sink) Write(ctx context.Context, doc harvest.Document) (Result, error) {
	objectPath := ObjectPath(s.cfg.PathPrefix, doc)
	uri, err := s.blobs.PutObject(ctx, objectPath, s.cfg.ContentType, strings.NewReader(Render(doc)))
	if err != nil {
		return Result{}, fmt.Errorf("store document %s: %w", doc.URL, err)
	}
	res := Result{BlobURI: uri}

	var errs []error
	if s.index != nil {
		if err := s.index.StoreDocument(ctx, doc, uri); err != nil {
			errs = append(errs, fmt.Errorf("index document %s: %w", doc.URL, err))
		}
	}
	if s.publisher != nil {
		id, err := s.publisher.Publish(ctx, s.cfg.Topic, Event{
			Event:       EventDocumentExtracted,
			ID:          doc.ID,
			URL:         doc.URL,
			Title:       doc.Title,
			BlobURI:     uri,
			Tier:        doc.Tier,
			Placeholder: doc.Placeholder,
			ContentHash: doc.ContentHash,
			Metadata:    doc.Metadata,
			ExtractedAt: doc.ExtractedAt,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("publish document %s: %w", doc.URL, err))
		}
		res.MessageID = id
	}
	s.logger.Info("document stored",
		zap.String("url", doc.URL),
		zap.String("blob_uri", uri),
		zap.String("tier", string(doc.Tier)),
		zap.Bool("placeholder", doc.Placeholder),
	)
	return res, errors.Join(errs...)
}

// ObjectPath names the object for doc: prefix/date/host/id.md.
func ObjectPath(prefix string, doc harvest.Document) string {
	host := domain.Host(doc.URL)
	if host == "" {
		host = domain.Unknown
	}
	name := doc.ID
	if name == "" {
		name = "document"
	}
	date := doc.ExtractedAt
	if date.IsZero() {
		date = time.Now()
	}
	return path.Join(prefix, date.UTC().Format("2006-01-02"), host, name+".md")
}

// Render lays out a stored document: a title heading, the source link, one
// line per metadata entry, the summary, a rule, then the Markdown body.
func Render(doc harvest.Document) string {
	title := doc.Title
	if title == "" {
		title = doc.Metadata["title"]
	}
	if title == "" {
		title = doc.URL
	}
	summary := doc.Description
	if summary == "" {
		summary = doc.Metadata["summary"]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nSource: [%s](%s)\n", title, doc.URL, doc.URL)

	keys := make([]string, 0, len(doc.Metadata))
	for k := range doc.Metadata {
		if k == "title" || k == "summary" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", metadataLabel(k), doc.Metadata[k])
	}
	if summary != "" {
		fmt.Fprintf(&b, "\n%s\n", summary)
	}
	b.WriteString("\n---\n\n")
	b.WriteString(doc.Markdown)
	if !strings.HasSuffix(doc.Markdown, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// metadataLabel turns reading_time into "Reading time".
func metadataLabel(key string) string {
	label := strings.ReplaceAll(strings.ReplaceAll(key, "_", " "), "-", " ")
	if label == "" {
		return key
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

type multiIndex []harvest.DocumentIndex

// Indexes fans StoreDocument out to every non-nil index. It returns nil when
// none are given.
func Indexes(indexes ...harvest.DocumentIndex) harvest.DocumentIndex {
	var out multiIndex
	for _, idx := range indexes {
		if idx != nil {
			out = append(out, idx)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m multiIndex) StoreDocument(ctx context.Context, doc harvest.Document, blobURI string) error {
	var errs []error
	for _, idx := range m {
		if err := idx.StoreDocument(ctx, doc, blobURI); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
