// Package vecindex answers "top-N most similar" questions over a
// vector-bearing SQLite table.
//
// An Index embeds the query text with a caller-supplied Embedder, configures
// a table search from query.Params and decodes the rows into scored results:
//
//	ix, err := vecindex.NewIndex(tbl, embedder, "id", query.NewParams().
//		WithDistance(vector.Cosine).
//		WithStrategy(query.ApproximateSearch(20, 2)))
//	hits, err := vecindex.TopN[Document](ctx, ix, "how do I reset a password", 5)
//
// Scores are distances: smaller is closer.
package vecindex
