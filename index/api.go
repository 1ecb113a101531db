package index

import (
	"github.com/viant/vecindex/vector"
)

// Kind names an index implementation.
type Kind string

const (
	// KindAuto picks a kind from the data shape at build time.
	KindAuto Kind = "auto"
	// KindBrute is an exhaustive scan.
	KindBrute Kind = "brute"
	// KindCover is a cover tree.
	KindCover Kind = "cover"
)

// Candidate is a single kNN hit. Smaller Distance is closer.
type Candidate struct {
	RowID    int64
	Distance float64
}

// SearchOptions tune a single query.
type SearchOptions struct {
	// Probes bounds how much of the structure is explored; 0 means no bound.
	// Exhaustive indexes ignore it.
	Probes int
	// Accept restricts which rows may be returned.
	Accept func(rowID int64) bool
}

// Index defines a generic vector index with basic lifecycle methods.
type Index interface {
	// Kind reports the implementation.
	Kind() Kind

	// Distance reports the metric the index was built with.
	Distance() vector.DistanceType

	// Len returns the number of indexed vectors.
	Len() int

	// Build constructs the index from the given rowids and vectors.
	// rowIDs and vectors must have the same length and vectors a common dimension.
	Build(rowIDs []int64, vectors [][]float32) error

	// Search runs a kNN query and returns up to k candidates ordered by
	// increasing distance.
	Search(query []float32, k int, opts SearchOptions) ([]Candidate, error)

	// MarshalBinary serializes the index into a byte slice.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary reconstructs the index from a serialized byte slice.
	UnmarshalBinary(data []byte) error
}
