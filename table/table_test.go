package table

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/viant/vecindex/engine"
	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/row"
	"github.com/viant/vecindex/vector"
)

const docsDDL = `CREATE TABLE docs (
    id TEXT PRIMARY KEY,
    text TEXT,
    meta JSON,
    category TEXT,
    embedding VECTOR(3)
)`

func openDocs(t *testing.T) (*sql.DB, *Table) {
	t.Helper()
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	_, err = db.ExecContext(ctx, docsDDL)
	require.NoError(t, err)
	tbl := New(db, "docs", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, tbl.Insert(ctx,
		map[string]any{"id": "a", "text": "alpha", "category": "x", "meta": map[string]any{"lang": "en"}, "embedding": []float32{1, 0, 0}},
		map[string]any{"id": "b", "text": "beta", "category": "y", "embedding": []float32{0.9, 0.1, 0}},
		map[string]any{"id": "c", "text": "gamma", "category": "x", "embedding": []float32{0, 1, 0}},
		map[string]any{"id": "d", "text": "delta", "category": "y", "embedding": []float32{0, 0, 1}},
		map[string]any{"id": "e", "text": "epsilon", "category": "x", "embedding": []float64{0.5, 0.5, 0}},
	))
	return db, tbl
}

func ids(t *testing.T, rows []*row.Row) []string {
	t.Helper()
	ret := make([]string, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Get("id")
		require.True(t, ok)
		id, ok := v.AsString()
		require.True(t, ok)
		ret = append(ret, id)
	}
	return ret
}

func TestTable_Schema(t *testing.T) {
	_, tbl := openDocs(t)
	schema, err := tbl.Schema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "text", "meta", "category"}, schema.FilterEmbeddings())
	assert.Equal(t, []string{"embedding"}, schema.VectorColumns())
	column, ok := schema.Column("embedding")
	require.True(t, ok)
	assert.Equal(t, 3, column.Type.Dim)

	_, err = New(tbl.DB(), "missing").Schema(context.Background())
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestVectorQuery_Exact(t *testing.T) {
	_, tbl := openDocs(t)
	ctx := context.Background()
	query := []float32{1, 0, 0}

	var testCases = []struct {
		description string
		query       VectorQuery
		expect      []string
	}{
		{description: "nearest", query: tbl.VectorSearch(query).Limit(3), expect: []string{"a", "b", "e"}},
		{description: "ties by rowid", query: tbl.VectorSearch(query).Limit(5), expect: []string{"a", "b", "e", "c", "d"}},
		{description: "default limit", query: tbl.VectorSearch(query), expect: []string{"a", "b", "e", "c", "d"}},
		{description: "prefilter", query: tbl.VectorSearch(query).Limit(2).Where("category = ?", "y"), expect: []string{"b", "d"}},
		{description: "postfilter", query: tbl.VectorSearch(query).Limit(2).Where("category = ?", "y").Postfilter(), expect: []string{"b"}},
		{description: "cosine", query: tbl.VectorSearch([]float32{0, 2, 0}).Distance(vector.Cosine).Limit(2), expect: []string{"c", "e"}},
		{description: "bypass", query: tbl.VectorSearch(query).BypassVectorIndex().Limit(1), expect: []string{"a"}},
	}
	for _, testCase := range testCases {
		rows, err := testCase.query.Execute(ctx)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, ids(t, rows), testCase.description)
	}
}

func TestVectorQuery_Rows(t *testing.T) {
	_, tbl := openDocs(t)
	ctx := context.Background()

	rows, err := tbl.VectorSearch([]float32{1, 0, 0}).Limit(1).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	first := rows[0]
	assert.Equal(t, []string{"id", "text", "meta", "category", "embedding", DistanceColumn}, first.Names())

	distance, _ := first.Get(DistanceColumn)
	score, ok := distance.AsNumber()
	require.True(t, ok)
	assert.InDelta(t, 0, score, 1e-9)

	meta, _ := first.Get("meta")
	object, ok := meta.AsObject()
	require.True(t, ok)
	lang, _ := object["lang"].AsString()
	assert.Equal(t, "en", lang)

	embedding, _ := first.Get("embedding")
	items, ok := embedding.AsList()
	require.True(t, ok)
	assert.Len(t, items, 3)

	rows, err = tbl.VectorSearch([]float32{1, 0, 0}).Limit(2).Select(Columns("id")).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", DistanceColumn}, rows[0].Names())

	rows, err = tbl.VectorSearch([]float32{1, 0, 0}).Limit(1).Select(Exclude("embedding", "meta")).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "text", "category", DistanceColumn}, rows[0].Names())
}

func TestVectorQuery_Errors(t *testing.T) {
	db, tbl := openDocs(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE multi (id TEXT, v1 VECTOR(2), v2 EMBEDDING)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE plain (id TEXT, text TEXT)`)
	require.NoError(t, err)
	multi := New(db, "multi")
	require.NoError(t, multi.Insert(ctx, map[string]any{"id": "m", "v1": []float32{1, 1}, "v2": []float32{1, 0}}))

	var testCases = []struct {
		description string
		query       VectorQuery
		expect      error
	}{
		{description: "empty vector", query: tbl.VectorSearch(nil), expect: ErrEmptyVector},
		{description: "dimension", query: tbl.VectorSearch([]float32{1, 0}), expect: ErrDimensionMismatch},
		{description: "unknown select", query: tbl.VectorSearch([]float32{1, 0, 0}).Select(Columns("nope")), expect: ErrUnknownColumn},
		{description: "unknown column", query: tbl.VectorSearch([]float32{1, 0, 0}).Column("nope"), expect: ErrUnknownColumn},
		{description: "not a vector", query: tbl.VectorSearch([]float32{1, 0, 0}).Column("text"), expect: ErrNotVectorColumn},
		{description: "ambiguous", query: multi.VectorSearch([]float32{1, 0}), expect: ErrAmbiguousVectorColumn},
		{description: "no vector column", query: New(db, "plain").VectorSearch([]float32{1}), expect: ErrNoVectorColumn},
	}
	for _, testCase := range testCases {
		_, err := testCase.query.Execute(ctx)
		assert.True(t, errors.Is(err, testCase.expect), "%s: %v", testCase.description, err)
	}

	rows, err := multi.VectorSearch([]float32{1, 0}).Column("v2").Execute(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTable_CreateIndex(t *testing.T) {
	for _, kind := range []index.Kind{index.KindBrute, index.KindCover, index.KindAuto} {
		t.Run(string(kind), func(t *testing.T) {
			_, tbl := openDocs(t)
			ctx := context.Background()
			require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: kind}))

			info, err := tbl.IndexInfo(ctx, "embedding")
			require.NoError(t, err)
			assert.Equal(t, vector.L2, info.Distance)
			assert.False(t, info.Stale)

			query := []float32{1, 0, 0}
			exact, err := tbl.VectorSearch(query).BypassVectorIndex().Limit(3).Execute(ctx)
			require.NoError(t, err)
			approx, err := tbl.VectorSearch(query).Limit(3).Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, ids(t, exact), ids(t, approx))

			refined, err := tbl.VectorSearch(query).Probes(8).RefineFactor(2).Limit(2).Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids(t, refined))

			filtered, err := tbl.VectorSearch(query).Where("category = ?", "y").Limit(2).Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "d"}, ids(t, filtered))

			post, err := tbl.VectorSearch(query).Where("category = ?", "y").Postfilter().Limit(2).Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, ids(t, post))

			none, err := tbl.VectorSearch(query).Where("category = ?", "z").Limit(2).Execute(ctx)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestTable_IndexInvalidation(t *testing.T) {
	_, tbl := openDocs(t)
	ctx := context.Background()
	require.NoError(t, tbl.CreateIndex(ctx, "embedding", IndexOptions{Kind: index.KindBrute}))
	before, err := tbl.IndexInfo(ctx, "embedding")
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(ctx, map[string]any{"id": "f", "text": "phi", "category": "y", "embedding": []float32{1, 0, 0.01}}))
	stale, err := tbl.IndexInfo(ctx, "embedding")
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Greater(t, stale.Generation, before.Generation)

	rows, err := tbl.VectorSearch([]float32{1, 0, 0}).Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "f"}, ids(t, rows))

	rebuilt, err := tbl.IndexInfo(ctx, "embedding")
	require.NoError(t, err)
	assert.False(t, rebuilt.Stale)

	// a fresh handle restores the persisted index
	reopened := New(tbl.DB(), "docs")
	rows, err = reopened.VectorSearch([]float32{1, 0, 0}).Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "f"}, ids(t, rows))

	count, err := tbl.Reindex(ctx, "embedding")
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	require.NoError(t, tbl.DropIndex(ctx, "embedding"))
	_, err = tbl.IndexInfo(ctx, "embedding")
	assert.ErrorIs(t, err, ErrNoIndex)
	_, err = tbl.Reindex(ctx, "embedding")
	assert.ErrorIs(t, err, ErrNoIndex)

	// writes after the drop no longer touch vector_storage
	require.NoError(t, tbl.Insert(ctx, map[string]any{"id": "g", "embedding": []float32{0, 0, 0.5}}))
}

func TestTable_DistanceMismatch(t *testing.T) {
	_, tbl := openDocs(t)
	ctx := context.Background()
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindBrute, Distance: vector.L2}))

	_, err := tbl.VectorSearch([]float32{1, 0, 0}).Distance(vector.Cosine).Execute(ctx)
	assert.ErrorIs(t, err, ErrDistanceMismatch)

	rows, err := tbl.VectorSearch([]float32{1, 0, 0}).Distance(vector.Cosine).BypassVectorIndex().Limit(1).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(t, rows))

	err = tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindCover, Distance: vector.Dot})
	assert.Error(t, err)
	err = tbl.CreateIndex(ctx, "", IndexOptions{Kind: "hnsw"})
	assert.Error(t, err)
}

func TestTable_ConcurrentSearch(t *testing.T) {
	_, tbl := openDocs(t)
	ctx := context.Background()
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindCover}))
	require.NoError(t, tbl.Insert(ctx, map[string]any{"id": "f", "embedding": []float32{0.95, 0.05, 0}}))

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]string, 8)
	for i := range results {
		g.Go(func() error {
			rows, err := tbl.VectorSearch([]float32{1, 0, 0}).Limit(3).Execute(gctx)
			if err != nil {
				return err
			}
			for _, r := range rows {
				v, _ := r.Get("id")
				id, _ := v.AsString()
				results[i] = append(results[i], id)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, result := range results {
		assert.Equal(t, []string{"a", "f", "b"}, result)
	}
}

func TestDecodeIndex(t *testing.T) {
	spec := IndexOptions{Kind: index.KindCover, Distance: vector.Cosine, CoverBase: 2}.spec()
	idx, err := spec.newIndex(10, 2)
	require.NoError(t, err)
	require.NoError(t, idx.Build([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}}))
	data, err := idx.MarshalBinary()
	require.NoError(t, err)
	blob, err := compressIndex(data)
	require.NoError(t, err)

	restored, err := decodeIndex(blob)
	require.NoError(t, err)
	assert.Equal(t, index.KindCover, restored.Kind())
	assert.Equal(t, vector.Cosine, restored.Distance())
	assert.Equal(t, 2, restored.Len())

	_, err = decodeIndex([]byte("not zstd"))
	assert.Error(t, err)
}

func TestVectorQuery_ZeroMagnitude(t *testing.T) {
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE pts (id TEXT PRIMARY KEY, embedding VECTOR(2))`)
	require.NoError(t, err)
	tbl := New(db, "pts")
	require.NoError(t, tbl.Insert(ctx,
		map[string]any{"id": "a", "embedding": []float32{1, 0}},
		map[string]any{"id": "z", "embedding": []float32{0, 0}},
	))
	query := []float32{1, 0.1}

	var testCases = []struct {
		description string
		kind        index.Kind
	}{
		{description: "exact"},
		{description: "brute", kind: index.KindBrute},
		{description: "cover", kind: index.KindCover},
	}
	for _, testCase := range testCases {
		if testCase.kind != "" {
			require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: testCase.kind, Distance: vector.Cosine}), testCase.description)
		}
		for _, limit := range []int{1, 2} {
			rows, err := tbl.VectorSearch(query).Distance(vector.Cosine).Limit(limit).Execute(ctx)
			require.NoError(t, err, testCase.description)
			assert.Equal(t, []string{"a"}, ids(t, rows), testCase.description)
		}
		filtered, err := tbl.VectorSearch(query).Distance(vector.Cosine).Where("id <> ?", "b").Postfilter().Limit(2).Execute(ctx)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, []string{"a"}, ids(t, filtered), testCase.description)
	}

	rows, err := tbl.VectorSearch([]float32{0, 0}).Distance(vector.Cosine).BypassVectorIndex().Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestVectorQuery_LargeCandidateSet(t *testing.T) {
	if testing.Short() {
		t.Skip("large table")
	}
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE pts (id INTEGER PRIMARY KEY, embedding VECTOR(2))`)
	require.NoError(t, err)
	const count = 33000
	points := make([]map[string]any, count)
	for i := range points {
		points[i] = map[string]any{"id": i, "embedding": []float32{float32(i), 1}}
	}
	tbl := New(db, "pts")
	require.NoError(t, tbl.Insert(ctx, points...))
	require.NoError(t, tbl.CreateIndex(ctx, "", IndexOptions{Kind: index.KindBrute}))

	for _, refine := range []int{1, 2} {
		rows, err := tbl.VectorSearch([]float32{0, 1}).RefineFactor(refine).Limit(count).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, rows, count)
		first, _ := rows[0].Get("id")
		last, _ := rows[count-1].Get("id")
		assert.Equal(t, row.IntValue(0), first)
		assert.Equal(t, row.IntValue(count-1), last)
	}
}
