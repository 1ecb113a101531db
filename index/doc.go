// Package index defines a minimal abstraction for vector indexes that can be
// built from (rowid, embedding) pairs, queried for kNN under a distance type,
// and serialized for persistence. Implementations include a brute-force
// baseline and a cover tree.
package index
