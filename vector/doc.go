// Package vector holds the low-level vector primitives shared by this module:
//   - BLOB encoding of float32 embeddings
//   - distance types (L2, cosine, dot) and their distance math
//   - recognition of vector-valued column declarations
package vector
