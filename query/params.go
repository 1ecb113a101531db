package query

import (
	"errors"
	"fmt"

	"github.com/viant/vecindex/vector"
)

var (
	// ErrIncompatibleTuning reports ANN knobs set without the Approximate strategy.
	ErrIncompatibleTuning = errors.New("query: probes and refine factor require the approximate search type")
	// ErrInvalidParams reports an out-of-range parameter value.
	ErrInvalidParams = errors.New("query: invalid search params")
)

// Params describes how a vector search should be executed. The zero value
// leaves every choice to the backend. Setters return a modified copy.
type Params struct {
	distance   vector.DistanceType
	strategy   Strategy
	postFilter *bool
	column     string
}

// NewParams returns params with every field unset.
func NewParams() Params { return Params{} }

// WithDistance sets the distance type. It must match the metric the
// backend index was built with.
func (p Params) WithDistance(distance vector.DistanceType) Params {
	p.distance = distance
	return p
}

// WithStrategy sets the search type together with its knobs.
func (p Params) WithStrategy(strategy Strategy) Params {
	p.strategy = strategy
	return p
}

// WithSearchType sets only the search type, keeping any knobs already set.
func (p Params) WithSearchType(searchType SearchType) Params {
	p.strategy.Type = searchType
	return p
}

// WithProbes sets how much of the index an approximate search explores.
func (p Params) WithProbes(probes int) Params {
	p.strategy.Probes = probes
	return p
}

// WithRefineFactor sets the candidate multiplier re-ranked with exact
// distances after an approximate search.
func (p Params) WithRefineFactor(refineFactor int) Params {
	p.strategy.RefineFactor = refineFactor
	return p
}

// WithPostFilter selects whether row filters run after (true) or before
// (false) the vector search.
func (p Params) WithPostFilter(postFilter bool) Params {
	p.postFilter = &postFilter
	return p
}

// WithColumn names the vector column to search. Only needed when the table
// has more than one.
func (p Params) WithColumn(column string) Params {
	p.column = column
	return p
}

// Distance returns the configured distance type.
func (p Params) Distance() vector.DistanceType { return p.distance }

// Strategy returns the configured strategy.
func (p Params) Strategy() Strategy { return p.strategy }

// PostFilter returns the filter timing and whether it was set.
func (p Params) PostFilter() (bool, bool) {
	if p.postFilter == nil {
		return false, false
	}
	return *p.postFilter, true
}

// Column returns the configured vector column.
func (p Params) Column() string { return p.column }

// Validate rejects combinations Apply would silently ignore and values out
// of range.
func (p Params) Validate() error {
	if p.distance != vector.DistanceUnset && !p.distance.Valid() {
		return fmt.Errorf("%w: distance %d", ErrInvalidParams, p.distance)
	}
	s := p.strategy
	if s.Probes < 0 || s.RefineFactor < 0 {
		return fmt.Errorf("%w: probes %d, refine factor %d", ErrInvalidParams, s.Probes, s.RefineFactor)
	}
	if s.Tuned() && s.Type != Approximate {
		search := s.Type.String()
		if search == "" {
			search = "unset"
		}
		return fmt.Errorf("%w (search type: %s)", ErrIncompatibleTuning, search)
	}
	return nil
}
