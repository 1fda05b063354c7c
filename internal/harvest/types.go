// Package harvest defines core types shared across the fetch and extraction subsystems.
package harvest

import (
	"time"
)

// Route tells the pipeline where an item goes after the HTTP stage.
type Route string

// Route values emitted by the orchestrator.
const (
	RouteComplete       Route = "complete"
	RouteNeedsRendering Route = "needs_rendering"
)

// Tier records which fetch tier produced an item's content.
type Tier string

// Tier values recorded on items and documents.
const (
	TierNone    Tier = ""
	TierSkipped Tier = "skipped"
	TierHTTP    Tier = "http"
	TierRender  Tier = "render"
)

// OutcomeKind tags a FetchOutcome.
type OutcomeKind int

// Outcome kinds produced once per fetch attempt.
const (
	OutcomeFailed OutcomeKind = iota
	OutcomeFetched
	OutcomeNeedsRendering
	OutcomeBlocked
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFetched:
		return "fetched"
	case OutcomeNeedsRendering:
		return "needs_rendering"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "failed"
	}
}

// FetchRequest captures everything needed for one HTTP attempt.
type FetchRequest struct {
	URL       string
	RateLimit bool
	Timeout   time.Duration
}

// FetchOutcome is the classified result of one HTTP attempt. Body and Encoding
// are only set for OutcomeFetched; Reason explains the other kinds.
type FetchOutcome struct {
	Kind     OutcomeKind
	Body     []byte
	Encoding string
	Reason   string
	Err      error
}

// Item is a URL travelling through the pipeline together with whatever content
// has been attached to it so far.
type Item struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  []byte            `json:"-"`
	Encoding string            `json:"encoding,omitempty"`
	Route    Route             `json:"route,omitempty"`
	Tier     Tier              `json:"tier,omitempty"`
	Reason   string            `json:"reason,omitempty"`
}

// Document is the normalized Markdown produced for one item.
type Document struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	SiteName    string            `json:"site_name,omitempty"`
	Markdown    string            `json:"markdown"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Tier        Tier              `json:"tier"`
	Reason      string            `json:"reason,omitempty"`
	Placeholder bool              `json:"placeholder"`
	ContentHash string            `json:"content_hash,omitempty"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// CloneMetadata returns a copy of m, or nil when m is empty.
func CloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
