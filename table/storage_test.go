package table

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/vecindex/engine"
	"github.com/viant/vecindex/index"
)

// TestWriteInvalidatesPersistedIndex verifies that table writes clear the
// persisted index in vector_storage and the next search rebuilds it.
func TestWriteInvalidatesPersistedIndex(t *testing.T) {
	db, err := engine.Open(filepath.Join(t.TempDir(), "vec_iv.sqlite"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	_, err = db.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE docs (id TEXT PRIMARY KEY, embedding BLOB)`)
	require.NoError(t, err)

	tbl := New(db, "docs")
	require.NoError(t, tbl.Insert(ctx,
		map[string]any{"id": "d1", "embedding": []float32{1, 0}},
		map[string]any{"id": "d2", "embedding": []float32{0, 1}},
	))
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindBrute}))

	blobSize := func() int {
		var blob []byte
		require.NoError(t, db.QueryRowContext(ctx, `SELECT "index" FROM vector_storage WHERE table_name = 'docs' AND column_name = 'embedding'`).Scan(&blob))
		return len(blob)
	}
	assert.Greater(t, blobSize(), 0)

	_, err = db.ExecContext(ctx, `UPDATE docs SET id = 'd2x' WHERE id = 'd2'`)
	require.NoError(t, err)
	assert.Equal(t, 0, blobSize())

	rows, err := tbl.VectorSearch([]float32{0, 1}).Limit(1).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id, _ := rows[0].Get("id")
	actual, _ := id.AsString()
	assert.Equal(t, "d2x", actual)
	assert.Greater(t, blobSize(), 0)

	_, err = db.ExecContext(ctx, `DELETE FROM docs WHERE id = 'd1'`)
	require.NoError(t, err)
	assert.Equal(t, 0, blobSize())
}

func TestAcquireBuildLock(t *testing.T) {
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, ensureVectorStorage(ctx, db))
	tbl := New(db, "docs")

	unlock, err := tbl.acquireBuildLock(ctx, "embedding")
	require.NoError(t, err)
	unlock()

	// a fresh lock held by another owner blocks until the context ends
	_, err = db.ExecContext(ctx, `INSERT INTO vector_storage_locks(table_name, column_name, owner, locked_at) VALUES('docs', 'embedding', 'other', ?)`, time.Now().Unix())
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = tbl.acquireBuildLock(waitCtx, "embedding")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a stale lock is taken over
	_, err = db.ExecContext(ctx, `UPDATE vector_storage_locks SET locked_at = ? WHERE table_name = 'docs'`, time.Now().Add(-2*lockStaleAfter).Unix())
	require.NoError(t, err)
	unlock, err = tbl.acquireBuildLock(ctx, "embedding")
	require.NoError(t, err)
	var owner string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT owner FROM vector_storage_locks WHERE table_name = 'docs'`).Scan(&owner))
	assert.Equal(t, lockOwnerID, owner)
	unlock()
	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_storage_locks`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSearchReadOnlyHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vec_ro.sqlite")
	writer, err := engine.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = writer.ExecContext(ctx, `CREATE TABLE docs (id TEXT PRIMARY KEY, embedding VECTOR(2))`)
	require.NoError(t, err)
	tbl := New(writer, "docs")
	require.NoError(t, tbl.Insert(ctx,
		map[string]any{"id": "d1", "embedding": []float32{1, 0}},
		map[string]any{"id": "d2", "embedding": []float32{0, 1}},
	))
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindBrute}))
	require.NoError(t, tbl.Insert(ctx, map[string]any{"id": "d3", "embedding": []float32{0.1, 1}}))
	require.NoError(t, writer.Close())

	reader, err := engine.Open(fmt.Sprintf("file:%s?mode=ro", path))
	require.NoError(t, err)
	defer reader.Close()
	readOnly := New(reader, "docs")

	var testCases = []struct {
		description string
		query       VectorQuery
	}{
		{description: "default", query: readOnly.VectorSearch([]float32{0.1, 1}).Limit(2)},
		{description: "approximate", query: readOnly.VectorSearch([]float32{0.1, 1}).Probes(4).RefineFactor(2).Limit(2)},
		{description: "exact", query: readOnly.VectorSearch([]float32{0.1, 1}).BypassVectorIndex().Limit(2)},
	}
	for _, testCase := range testCases {
		rows, err := testCase.query.Execute(ctx)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, []string{"d3", "d2"}, ids(t, rows), testCase.description)
	}

	info, err := readOnly.IndexInfo(ctx, "embedding")
	require.NoError(t, err)
	assert.True(t, info.Stale)
	var locks int
	require.NoError(t, reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_storage_locks`).Scan(&locks))
	assert.Equal(t, 0, locks)
}

func TestEnsureIndexCallerCancellation(t *testing.T) {
	db, tbl := openDocs(t)
	ctx := context.Background()
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindBrute}))
	require.NoError(t, tbl.Insert(ctx, map[string]any{"id": "f", "embedding": []float32{1, 0, 0.01}}))

	// a lock held elsewhere keeps the rebuild waiting
	_, err := db.ExecContext(ctx, `INSERT INTO vector_storage_locks(table_name, column_name, owner, locked_at) VALUES('docs', 'embedding', 'other', ?)`, time.Now().Unix())
	require.NoError(t, err)

	cancelCtx, cancel := context.WithCancel(ctx)
	cancelled := make(chan error, 1)
	go func() {
		_, err := tbl.ensureIndex(cancelCtx, "embedding")
		cancelled <- err
	}()
	time.Sleep(2 * lockRetryDelay)
	live := make(chan error, 1)
	go func() {
		rows, err := tbl.VectorSearch([]float32{1, 0, 0}).Limit(2).Execute(ctx)
		if err == nil && len(rows) != 2 {
			err = errors.New("unexpected row count")
		}
		live <- err
	}()
	time.Sleep(2 * lockRetryDelay)
	cancel()
	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	_, err = db.ExecContext(ctx, `DELETE FROM vector_storage_locks WHERE owner = 'other'`)
	require.NoError(t, err)
	select {
	case err := <-live:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("live caller did not return")
	}
	info, err := tbl.IndexInfo(ctx, "embedding")
	require.NoError(t, err)
	assert.False(t, info.Stale)
}
