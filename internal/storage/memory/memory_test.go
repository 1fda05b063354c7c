package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-harvester/internal/harvest"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "example.com/page.md", "text/markdown", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://example.com/page.md", uri)

	payload[0] = 'C'
	obj, ok := store.Get("example.com/page.md")
	require.True(t, ok)
	assert.Equal(t, "content", string(obj.Data))
	assert.Equal(t, "text/markdown", obj.ContentType)

	obj.Data[0] = 'X'
	again, _ := store.Get("example.com/page.md")
	assert.Equal(t, "content", string(again.Data))
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.md", "a.md"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.md", "b.md"}, store.Paths())
	_, ok := store.Get("missing.md")
	assert.False(t, ok)
}

func TestDocumentIndex(t *testing.T) {
	t.Parallel()

	idx := NewDocumentIndex()
	require.Error(t, idx.StoreDocument(context.Background(), harvest.Document{}, ""))

	require.NoError(t, idx.StoreDocument(context.Background(), harvest.Document{ID: "1", URL: "https://a"}, "memory://a"))
	require.NoError(t, idx.StoreDocument(context.Background(), harvest.Document{ID: "2", URL: "https://b"}, "memory://b"))
	require.NoError(t, idx.StoreDocument(context.Background(), harvest.Document{ID: "1", URL: "https://a2"}, "memory://a2"))

	got, ok := idx.Get("1")
	require.True(t, ok)
	assert.Equal(t, "https://a2", got.Document.URL)
	assert.Equal(t, "memory://a2", got.BlobURI)

	list := idx.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].Document.ID)
	assert.Equal(t, "2", list[1].Document.ID)
}
