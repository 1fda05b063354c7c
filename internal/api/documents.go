package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/article-harvester/internal/storage/memory"
)

const (
	defaultDocumentLimit = 50
	maxDocumentLimit     = 500
)

type documentSummaryDTO struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Tier        string `json:"tier"`
	Placeholder bool   `json:"placeholder"`
	BlobURI     string `json:"blob_uri,omitempty"`
}

// listDocuments handles GET /v1/documents?limit=&offset=. Documents come back
// newest first as {"documents": [...]}; 503 when no lister is configured.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "document index unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultDocumentLimit, maxDocumentLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	all := s.docs.List()
	out := make([]documentSummaryDTO, 0, limit)
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, toSummaryDTO(all[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "total": len(all)})
}

// getDocument handles GET /v1/documents/{doc_id} and returns the full document.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		writeError(w, http.StatusServiceUnavailable, "document index unavailable")
		return
	}
	id := chi.URLParam(r, "doc_id")
	doc, ok := s.docs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": documentDTO{Document: doc.Document, BlobURI: doc.BlobURI},
	})
}

func toSummaryDTO(doc memory.IndexedDocument) documentSummaryDTO {
	return documentSummaryDTO{
		ID:          doc.Document.ID,
		URL:         doc.Document.URL,
		Title:       doc.Document.Title,
		Tier:        string(doc.Document.Tier),
		Placeholder: doc.Document.Placeholder,
		BlobURI:     doc.BlobURI,
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
