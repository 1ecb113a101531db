package tree

import "math"

// Point represents a vector in the cover tree.
type Point struct {
	index     int32
	Magnitude float32
	Vector    []float32
}

// HasValue reports whether the point has been inserted and carries a value.
func (p *Point) HasValue() bool {
	return p != nil && p.index >= 0
}

// NewPoint constructs a point for the given vector.
func NewPoint(vector ...float32) *Point {
	return &Point{index: -1, Vector: vector}
}

// Node represents a cover-tree node. radius is the cached distance bound of
// the whole subtree, valid while radiusComputed equals the tree version.
type Node struct {
	level          int32
	baseLevel      float32
	point          *Point
	children       []Node
	radius         float32
	radiusComputed uint64
}

// NewNode constructs a node for the provided point and level.
func NewNode(point *Point, level int32, base float32) Node {
	return Node{
		level:     level,
		baseLevel: float32(math.Pow(float64(base), float64(level))),
		point:     point,
	}
}

// Neighbor describes a candidate returned by a kNN search.
type Neighbor struct {
	Point    *Point
	Distance float32
}

// Neighbors implements heap.Interface sorted by descending distance (max-heap).
type Neighbors []Neighbor

func (h Neighbors) Len() int            { return len(h) }
func (h Neighbors) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h Neighbors) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *Neighbors) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *Neighbors) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// values is guarded by the tree lock.
type values[T any] struct {
	data []T
}

func (v *values[T]) put(value T) int32 {
	v.data = append(v.data, value)
	return int32(len(v.data) - 1)
}

func (v *values[T]) value(index int32) T {
	var zero T
	if index < 0 || int(index) >= len(v.data) {
		return zero
	}
	return v.data[index]
}
