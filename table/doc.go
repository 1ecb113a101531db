// Package table exposes a SQLite table holding embedding columns as a
// vector-searchable dataset.
//
// A Table is introspected through Schema and searched through VectorQuery,
// which implements the query.Builder capability:
//
//	tbl := table.New(db, "docs")
//	rows, err := tbl.VectorSearch(vec).
//		Limit(10).
//		Select(table.Columns("id", "text")).
//		Execute(ctx)
//
// Searches scan the table with the vec_* SQL functions unless an index was
// created with CreateIndex. Indexes are persisted zstd-compressed in the
// vector_storage table and invalidated by triggers on every table write; the
// next approximate query rebuilds them.
package table
