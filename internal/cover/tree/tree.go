package tree

// This implementation is adapted from github.com/viant/gds/tree/cover.

import (
	"container/heap"
	"math"
	"sync"

	"github.com/viant/vec/search"
)

// Tree represents a cover tree for cosine/euclidean kNN queries.
type Tree[T any] struct {
	root             *Node
	base             float32
	distanceFuncName DistanceFunction
	distanceFunc     DistanceFunc
	values           values[T]
	points           []*Point
	version          uint64
	radiusVersion    uint64
	boundStrategy    BoundStrategy
	mu               sync.RWMutex
}

// BoundStrategy selects which lower-bound radius to use when pruning.
type BoundStrategy int

const (
	// BoundPerNode uses cached per-node subtree radius (tighter pruning).
	BoundPerNode BoundStrategy = iota
	// BoundLevel uses a geometric bound derived from the node level.
	BoundLevel
)

// SearchOptions tune a kNN query.
type SearchOptions[T any] struct {
	// Budget caps how many nodes get expanded; 0 means exhaustive.
	Budget int
	// Accept, when set, decides which values may appear in the result.
	// Rejected points still route the search.
	Accept func(value T) bool
}

// NewTree constructs a cover tree with the provided base and distance metric.
func NewTree[T any](base float32, distanceFn DistanceFunction) *Tree[T] {
	if base <= 1 {
		base = 1.3
	}
	fn := distanceFn.Function()
	if fn == nil {
		fn = DistanceFunctionCosine.Function()
		distanceFn = DistanceFunctionCosine
	}
	return &Tree[T]{
		base:             base,
		distanceFuncName: distanceFn,
		distanceFunc:     fn,
		boundStrategy:    BoundPerNode,
	}
}

// SetBoundStrategy switches the pruning strategy.
func (t *Tree[T]) SetBoundStrategy(s BoundStrategy) {
	t.mu.Lock()
	t.boundStrategy = s
	t.mu.Unlock()
}

// Base returns the tree base.
func (t *Tree[T]) Base() float32 { return t.base }

// Distance returns the configured metric.
func (t *Tree[T]) Distance() DistanceFunction { return t.distanceFuncName }

// Len returns the number of inserted points.
func (t *Tree[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Insert adds a new value/vector pair to the tree and returns its index.
func (t *Tree[T]) Insert(value T, point *Point) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	point.index = t.values.put(value)
	t.points = append(t.points, point)
	if point.Magnitude == 0 && len(point.Vector) > 0 {
		point.Magnitude = search.Float32s(point.Vector).Magnitude()
	}
	if t.root == nil {
		node := NewNode(point, 0, t.base)
		t.root = &node
	} else {
		t.insert(t.root, point, 0)
	}
	t.version++
	return point.index
}

// Value returns the stored value for the given point.
func (t *Tree[T]) Value(point *Point) T {
	var zero T
	if point == nil || !point.HasValue() {
		return zero
	}
	return t.values.value(point.index)
}

// Each visits points in insertion order together with their values.
func (t *Tree[T]) Each(fn func(value T, point *Point)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, point := range t.points {
		fn(t.values.value(point.index), point)
	}
}

func (t *Tree[T]) insert(node *Node, point *Point, level int32) {
	for {
		baseLevel := float32(math.Pow(float64(t.base), float64(level)))
		distance := t.distanceFunc(point, node.point)
		if distance < baseLevel {
			inserted := false
			for i := range node.children {
				child := &node.children[i]
				if t.distanceFunc(point, child.point) < baseLevel {
					node = child
					level--
					inserted = true
					break
				}
			}
			if !inserted {
				node.children = append(node.children, NewNode(point, level-1, t.base))
				return
			}
		} else {
			level++
			if level > node.level {
				newRoot := NewNode(point, level, t.base)
				newRoot.children = append(newRoot.children, *t.root)
				t.root = &newRoot
				return
			}
		}
	}
}

// KNearestNeighbors performs a best-first search with a node priority queue
// and returns up to k neighbors ordered by increasing distance.
func (t *Tree[T]) KNearestNeighbors(point *Point, k int, opts SearchOptions[T]) []*Neighbor {
	if k <= 0 {
		return nil
	}
	t.prepareRadius()
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}
	if point.Magnitude == 0 && len(point.Vector) > 0 {
		point.Magnitude = search.Float32s(point.Vector).Magnitude()
	}
	accept := func(p *Point) bool {
		return opts.Accept == nil || opts.Accept(t.values.value(p.index))
	}
	nh := &Neighbors{}
	pq := &nodeQueue{}
	rootDist := t.distanceFunc(point, t.root.point)
	heap.Push(pq, nodeItem{node: t.root, lb: rootDist - t.boundRadius(t.root), centerDist: rootDist})

	expanded := 0
	for pq.Len() > 0 {
		if opts.Budget > 0 && expanded >= opts.Budget {
			break
		}
		top := heap.Pop(pq).(nodeItem)
		if nh.Len() == k && top.lb >= (*nh)[0].Distance {
			break
		}
		expanded++
		if accept(top.node.point) {
			if nh.Len() < k {
				heap.Push(nh, Neighbor{Point: top.node.point, Distance: top.centerDist})
			} else if top.centerDist < (*nh)[0].Distance {
				heap.Pop(nh)
				heap.Push(nh, Neighbor{Point: top.node.point, Distance: top.centerDist})
			}
		}
		for i := range top.node.children {
			child := &top.node.children[i]
			cd := t.distanceFunc(point, child.point)
			lb := cd - t.boundRadius(child)
			if nh.Len() == k && lb >= (*nh)[0].Distance {
				continue
			}
			heap.Push(pq, nodeItem{node: child, lb: lb, centerDist: cd})
		}
	}
	result := make([]*Neighbor, nh.Len())
	for i := len(result) - 1; i >= 0; i-- {
		n := heap.Pop(nh).(Neighbor)
		result[i] = &n
	}
	return result
}

// prepareRadius recomputes cached subtree radii once per tree version.
func (t *Tree[T]) prepareRadius() {
	t.mu.RLock()
	fresh := t.boundStrategy != BoundPerNode || t.radiusVersion == t.version
	t.mu.RUnlock()
	if fresh {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.radiusVersion == t.version {
		return
	}
	t.ensureRadius(t.root)
	t.radiusVersion = t.version
}

func (t *Tree[T]) ensureRadius(n *Node) float32 {
	if n == nil {
		return 0
	}
	if n.radiusComputed == t.version {
		return n.radius
	}
	maxR := float32(0)
	for i := range n.children {
		child := &n.children[i]
		d := t.distanceFunc(n.point, child.point) + t.ensureRadius(child)
		if d > maxR {
			maxR = d
		}
	}
	n.radius = maxR
	n.radiusComputed = t.version
	return maxR
}

func (t *Tree[T]) levelCoverRadius(n *Node) float32 {
	if t.base <= 1 || n == nil {
		return float32(math.MaxFloat32)
	}
	return n.baseLevel * t.base / (t.base - 1)
}

func (t *Tree[T]) boundRadius(n *Node) float32 {
	if t.boundStrategy == BoundLevel {
		return t.levelCoverRadius(n)
	}
	return n.radius
}

type nodeItem struct {
	node       *Node
	lb         float32
	centerDist float32
}

type nodeQueue []nodeItem

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].lb < q[j].lb }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeItem)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
