package query

import "github.com/viant/vecindex/vector"

// Builder is the backend query-builder capability Apply drives. Each method
// returns the builder to continue with.
type Builder[B any] interface {
	Distance(distance vector.DistanceType) B
	BypassVectorIndex() B
	Probes(probes int) B
	RefineFactor(refineFactor int) B
	Postfilter() B
	Column(name string) B
}

// Stage is one step of the pipeline. It reads only the params.
type Stage[B Builder[B]] struct {
	Name  string
	Apply func(p Params, b B) B
}

// Stage names in execution order.
const (
	StageDistance = "distance"
	StageStrategy = "strategy"
	StageFilter   = "filter"
	StageColumn   = "column"
)

// Stages returns the pipeline in the order Apply runs it.
func Stages[B Builder[B]]() []Stage[B] {
	return []Stage[B]{
		{Name: StageDistance, Apply: applyDistance[B]},
		{Name: StageStrategy, Apply: applyStrategy[B]},
		{Name: StageFilter, Apply: applyFilter[B]},
		{Name: StageColumn, Apply: applyColumn[B]},
	}
}

// Apply configures b from p and returns the resulting builder. The result
// depends on p and b only.
func Apply[B Builder[B]](p Params, b B) B {
	for _, stage := range Stages[B]() {
		b = stage.Apply(p, b)
	}
	return b
}

func applyDistance[B Builder[B]](p Params, b B) B {
	if p.distance == vector.DistanceUnset {
		return b
	}
	return b.Distance(p.distance)
}

func applyStrategy[B Builder[B]](p Params, b B) B {
	switch s := p.strategy; s.Type {
	case Exact:
		return b.BypassVectorIndex()
	case Approximate:
		if s.Probes > 0 {
			b = b.Probes(s.Probes)
		}
		if s.RefineFactor > 0 {
			b = b.RefineFactor(s.RefineFactor)
		}
	}
	return b
}

func applyFilter[B Builder[B]](p Params, b B) B {
	if post, ok := p.PostFilter(); ok && post {
		return b.Postfilter()
	}
	return b
}

func applyColumn[B Builder[B]](p Params, b B) B {
	if p.column == "" {
		return b
	}
	return b.Column(p.column)
}
