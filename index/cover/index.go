package cover

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/internal/cover/tree"
	"github.com/viant/vecindex/vector"
)

// Magic tags serialized cover indexes.
const Magic = "COV1"

const defaultBase float32 = 1.3

// Option configures an Index.
type Option func(*Index)

// WithBase sets the cover tree base; values <= 1 are ignored.
func WithBase(base float32) Option {
	return func(i *Index) {
		if base > 1 {
			i.base = base
		}
	}
}

// WithBoundStrategy selects the pruning bound.
func WithBoundStrategy(s tree.BoundStrategy) Option {
	return func(i *Index) { i.bound = s }
}

// Index implements index.Index on top of a cover tree keyed by rowid.
type Index struct {
	distance vector.DistanceType
	base     float32
	bound    tree.BoundStrategy
	tree     *tree.Tree[int64]
	dim      int
}

// New creates an empty cover index. Only L2 and cosine are metrics a cover
// tree can prune with.
func New(distance vector.DistanceType, opts ...Option) (*Index, error) {
	distance = distance.OrDefault()
	if distance != vector.L2 && distance != vector.Cosine {
		return nil, fmt.Errorf("cover: unsupported distance %q", distance)
	}
	ret := &Index{distance: distance, base: defaultBase}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// Kind implements index.Index.
func (i *Index) Kind() index.Kind { return index.KindCover }

// Distance implements index.Index.
func (i *Index) Distance() vector.DistanceType { return i.distance }

// Len implements index.Index.
func (i *Index) Len() int {
	if i.tree == nil {
		return 0
	}
	return i.tree.Len()
}

func (i *Index) treeDistance() tree.DistanceFunction {
	if i.distance == vector.Cosine {
		return tree.DistanceFunctionCosine
	}
	return tree.DistanceFunctionEuclidean
}

// Build constructs the tree.
func (i *Index) Build(rowIDs []int64, vectors [][]float32) error {
	dim, err := index.CheckShape(rowIDs, vectors)
	if err != nil {
		return fmt.Errorf("cover: %w", err)
	}
	points := make([]*tree.Point, len(vectors))
	for j, vec := range vectors {
		p := tree.NewPoint(vec...)
		p.Magnitude = magnitude(vec)
		points[j] = p
	}
	t := tree.NewTree[int64](i.base, i.treeDistance())
	t.SetBoundStrategy(i.bound)
	for j, p := range points {
		t.Insert(rowIDs[j], p)
	}
	i.tree = t
	i.dim = dim
	return nil
}

// Search returns up to k candidates ordered by increasing distance.
func (i *Index) Search(query []float32, k int, opts index.SearchOptions) ([]index.Candidate, error) {
	if i.tree == nil || i.tree.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != i.dim {
		return nil, fmt.Errorf("cover: query dim %d != index dim %d", len(query), i.dim)
	}
	neighbors := i.tree.KNearestNeighbors(tree.NewPoint(query...), k, tree.SearchOptions[int64]{
		Budget: opts.Probes,
		Accept: opts.Accept,
	})
	out := make([]index.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, index.Candidate{RowID: i.tree.Value(n.Point), Distance: float64(n.Distance)})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Distance < out[b].Distance })
	return out, nil
}

// MarshalBinary stores the vector payload followed by base(float32) and
// bound(uint8). The tree is rebuilt on load.
func (i *Index) MarshalBinary() ([]byte, error) {
	var rowIDs []int64
	var vecs [][]float32
	if i.tree != nil {
		i.tree.Each(func(rowID int64, p *tree.Point) {
			rowIDs = append(rowIDs, rowID)
			vecs = append(vecs, p.Vector)
		})
	}
	out, err := index.EncodeVectors(index.Header{Magic: Magic, Distance: i.distance}, rowIDs, vecs)
	if err != nil {
		return nil, err
	}
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(i.base))
	return append(out, byte(i.bound)), nil
}

// UnmarshalBinary loads the vector payload and rebuilds the tree.
func (i *Index) UnmarshalBinary(data []byte) error {
	header, rowIDs, vecs, rest, err := index.DecodeVectors(data)
	if err != nil {
		return fmt.Errorf("cover: %w", err)
	}
	if header.Magic != Magic {
		return fmt.Errorf("cover: unexpected format %q", header.Magic)
	}
	if len(rest) < 5 {
		return fmt.Errorf("cover: missing tree parameters")
	}
	i.distance = header.Distance
	i.base = math.Float32frombits(binary.LittleEndian.Uint32(rest))
	i.bound = tree.BoundStrategy(rest[4])
	return i.Build(rowIDs, vecs)
}

func magnitude(v []float32) float32 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return float32(math.Sqrt(s))
}
