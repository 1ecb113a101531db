package vector

import (
	"fmt"
	"math"
	"strings"
)

// DistanceType identifies the metric used to score vector similarity. It must
// match the metric an index was built with.
type DistanceType int

const (
	// DistanceUnset means the backend default applies.
	DistanceUnset DistanceType = iota
	// L2 is the Euclidean distance.
	L2
	// Cosine is the cosine distance, 1 - cosine similarity.
	Cosine
	// Dot is the dot-product distance, 1 - a·b.
	Dot
)

// DefaultDistance is used when no distance type is configured.
const DefaultDistance = L2

// String returns the canonical lower-case name.
func (d DistanceType) String() string {
	switch d {
	case L2:
		return "l2"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	default:
		return ""
	}
}

// Valid reports whether d names a concrete metric.
func (d DistanceType) Valid() bool { return d >= L2 && d <= Dot }

// OrDefault returns d, or DefaultDistance when d is unset.
func (d DistanceType) OrDefault() DistanceType {
	if d == DistanceUnset {
		return DefaultDistance
	}
	return d
}

// SQLFunction returns the name of the registered scalar SQL function that
// computes this distance between two embedding BLOBs.
func (d DistanceType) SQLFunction() string {
	switch d.OrDefault() {
	case Cosine:
		return "vec_distance_cosine"
	case Dot:
		return "vec_distance_dot"
	default:
		return "vec_l2"
	}
}

// ParseDistanceType parses a distance name. The empty string maps to
// DistanceUnset.
func ParseDistanceType(name string) (DistanceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DistanceUnset, nil
	case "l2", "euclidean":
		return L2, nil
	case "cos", "cosine":
		return Cosine, nil
	case "dot", "ip", "inner_product":
		return Dot, nil
	default:
		return DistanceUnset, fmt.Errorf("vector: unknown distance type %q", name)
	}
}

// Distance computes the distance between a and b under d. Smaller is closer.
func Distance(d DistanceType, a, b []float32) (float64, error) {
	switch d.OrDefault() {
	case Cosine:
		sim, err := CosineSimilarity(a, b)
		if err != nil {
			return 0, err
		}
		return 1 - sim, nil
	case Dot:
		p, err := DotProduct(a, b)
		if err != nil {
			return 0, err
		}
		return 1 - p, nil
	default:
		return L2Distance(a, b)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors. It
// returns an error if the vectors have different lengths or if either vector
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vector: cosine similarity on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("vector: cosine similarity with zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

// L2Distance computes the Euclidean (L2) distance between two vectors. It
// returns an error if the vectors have different lengths.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: L2 distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// DotProduct computes a·b.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: dot product dimension mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}
