package query

import (
	"fmt"
	"strings"
)

// SearchType selects between exhaustive and index-backed search.
type SearchType int

const (
	// SearchUnset lets the backend decide: the index when present, a scan otherwise.
	SearchUnset SearchType = iota
	// Exact bypasses any index structure (kNN, brute force).
	Exact
	// Approximate uses the index when present (ANN).
	Approximate
)

func (s SearchType) String() string {
	switch s {
	case Exact:
		return "exact"
	case Approximate:
		return "approximate"
	default:
		return ""
	}
}

// ParseSearchType parses a search type name; the empty string is SearchUnset.
func ParseSearchType(name string) (SearchType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return SearchUnset, nil
	case "exact", "flat", "knn", "enn":
		return Exact, nil
	case "approximate", "ann":
		return Approximate, nil
	default:
		return SearchUnset, fmt.Errorf("query: unknown search type %q", name)
	}
}

// Strategy is the search type together with the tuning knobs that only make
// sense for it. Probes and RefineFactor are meaningful for Approximate only.
type Strategy struct {
	Type         SearchType
	Probes       int
	RefineFactor int
}

// ExactSearch returns the brute-force strategy.
func ExactSearch() Strategy { return Strategy{Type: Exact} }

// ApproximateSearch returns the index-backed strategy; zero knobs are unset.
func ApproximateSearch(probes, refineFactor int) Strategy {
	return Strategy{Type: Approximate, Probes: probes, RefineFactor: refineFactor}
}

// Tuned reports whether any ANN knob is set.
func (s Strategy) Tuned() bool { return s.Probes != 0 || s.RefineFactor != 0 }
