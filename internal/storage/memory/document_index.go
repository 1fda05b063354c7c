package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/article-harvester/internal/harvest"
)

// IndexedDocument is a document together with where its body was stored.
type IndexedDocument struct {
	Document harvest.Document
	BlobURI  string
}

// DocumentIndex records documents keyed by ID.
type DocumentIndex struct {
	mu    sync.RWMutex
	docs  map[string]IndexedDocument
	order []string
}

// NewDocumentIndex constructs an empty index.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{docs: make(map[string]IndexedDocument)}
}

// StoreDocument upserts doc by ID.
func (s *DocumentIndex) StoreDocument(_ context.Context, doc harvest.Document, blobURI string) error {
	if doc.ID == "" {
		return errors.New("document id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = IndexedDocument{Document: doc, BlobURI: blobURI}
	return nil
}

// Get returns the document stored under id.
func (s *DocumentIndex) Get(id string) (IndexedDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// List returns documents in insertion order.
func (s *DocumentIndex) List() []IndexedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexedDocument, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}
