package bruteforce

import (
	"fmt"
	"sort"

	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/vector"
)

// Magic tags serialized brute-force indexes.
const Magic = "BRT1"

// Index is a simple brute-force vector index.
type Index struct {
	distance vector.DistanceType
	rowIDs   []int64
	vecs     [][]float32
	dim      int
}

// New creates an empty index for the distance type.
func New(distance vector.DistanceType) *Index {
	return &Index{distance: distance.OrDefault()}
}

// Kind implements index.Index.
func (i *Index) Kind() index.Kind { return index.KindBrute }

// Distance implements index.Index.
func (i *Index) Distance() vector.DistanceType { return i.distance.OrDefault() }

// Len implements index.Index.
func (i *Index) Len() int { return len(i.rowIDs) }

// Build loads rowids and vectors.
func (i *Index) Build(rowIDs []int64, vectors [][]float32) error {
	dim, err := index.CheckShape(rowIDs, vectors)
	if err != nil {
		return fmt.Errorf("bruteforce: %w", err)
	}
	i.rowIDs = append([]int64(nil), rowIDs...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	return nil
}

// Search returns the top-k rows by distance. Probes are ignored.
func (i *Index) Search(query []float32, k int, opts index.SearchOptions) ([]index.Candidate, error) {
	if len(i.vecs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), i.dim)
	}
	out := make([]index.Candidate, 0, len(i.vecs))
	for j, vec := range i.vecs {
		if opts.Accept != nil && !opts.Accept(i.rowIDs[j]) {
			continue
		}
		d, err := vector.Distance(i.distance, query, vec)
		if err != nil {
			// zero-magnitude rows have no cosine distance
			continue
		}
		out = append(out, index.Candidate{RowID: i.rowIDs[j], Distance: d})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Distance < out[b].Distance })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// MarshalBinary implements index.Index.
func (i *Index) MarshalBinary() ([]byte, error) {
	return index.EncodeVectors(index.Header{Magic: Magic, Distance: i.Distance()}, i.rowIDs, i.vecs)
}

// UnmarshalBinary implements index.Index.
func (i *Index) UnmarshalBinary(data []byte) error {
	header, rowIDs, vecs, _, err := index.DecodeVectors(data)
	if err != nil {
		return fmt.Errorf("bruteforce: %w", err)
	}
	if header.Magic != Magic {
		return fmt.Errorf("bruteforce: unexpected format %q", header.Magic)
	}
	i.distance = header.Distance
	return i.Build(rowIDs, vecs)
}
