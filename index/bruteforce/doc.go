// Package bruteforce provides a vector index that answers kNN queries by
// scanning all vectors under the configured distance type. It is exact and
// serves every metric, including dot product.
package bruteforce
