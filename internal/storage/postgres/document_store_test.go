package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-harvester/internal/harvest"
)

func TestStoreDocumentInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "documents")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	doc := harvest.Document{
		ID:          "0190a8c4-7b1e-7c3a-9f00-000000000001",
		URL:         "https://example.com/post",
		Title:       "Post",
		Tier:        harvest.TierRender,
		Reason:      "anti_bot (status 403)",
		ContentHash: "abc123",
		Metadata:    map[string]string{"issue": "42"},
		ExtractedAt: now,
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			doc.ID,
			doc.URL,
			doc.Title,
			"",
			"",
			"render",
			doc.Reason,
			false,
			doc.ContentHash,
			"gs://bucket/example.com/post.md",
			[]byte(`{"issue":"42"}`),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreDocument(context.Background(), doc, "gs://bucket/example.com/post.md"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDocumentWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO documents").WillReturnError(errors.New("connection reset"))

	err = store.StoreDocument(context.Background(), harvest.Document{ID: "1"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert document: connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDocumentValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "documents")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "documents; DROP TABLE x")
	assert.ErrorContains(t, err, "invalid table name")

	store, err := NewWithPool(mock, "documents")
	require.NoError(t, err)
	assert.ErrorContains(t, store.StoreDocument(context.Background(), harvest.Document{}, ""), "document id is required")

	var nilStore *DocumentStore
	assert.Error(t, nilStore.StoreDocument(context.Background(), harvest.Document{ID: "1"}, ""))
	nilStore.Close()
}

func TestNewRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.ErrorContains(t, err, "db.dsn is required")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("no route to host"))
	assert.ErrorContains(t, store.Ping(context.Background()), "ping postgres: no route to host")
	require.NoError(t, mock.ExpectationsWereMet())
}
