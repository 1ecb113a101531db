// Package cover provides a cover-tree vector index for the L2 and cosine
// distances. Probes bound the number of tree nodes expanded per query, which
// trades recall for speed.
package cover
