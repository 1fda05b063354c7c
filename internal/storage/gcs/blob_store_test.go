package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/article-harvester/internal/storage/gcs"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return client
}

func TestNewValidation(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	assert.Error(t, err)

	client := newTestClient(t, http.NotFoundHandler())
	_, err = gcs.New(client, gcs.Config{})
	assert.Error(t, err)
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	uploaded := make(chan string, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/docs-bucket/o")
		assert.Equal(t, "harvest/example.com/post.md", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		uploaded <- string(body)
		fmt.Fprintln(w, `{"name": "harvest/example.com/post.md", "bucket": "docs-bucket"}`)
	})

	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "docs-bucket", Prefix: "/harvest/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "example.com/post.md", "text/markdown", strings.NewReader("# Post body"))
	require.NoError(t, err)
	assert.Equal(t, "gs://docs-bucket/harvest/example.com/post.md", uri)
	assert.Contains(t, <-uploaded, "# Post body")
}

func TestPutObjectRequiresPath(t *testing.T) {
	store, err := gcs.New(newTestClient(t, http.NotFoundHandler()), gcs.Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "denied"}}`, http.StatusForbidden)
	})
	store, err := gcs.New(newTestClient(t, handler), gcs.Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a.md", "text/markdown", strings.NewReader("x"))
	assert.Error(t, err)
}
