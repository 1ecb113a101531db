package index

import (
	"fmt"
	"strings"

	"github.com/viant/vecindex/vector"
)

const (
	autoCoverMinDocs            = 4000
	autoCoverMinDim             = 64
	autoCoverMinDensity float64 = 16
)

// ParseKind parses an index kind name; the empty string is KindAuto.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return KindAuto, nil
	case "brute", "flat", "bruteforce":
		return KindBrute, nil
	case "cover":
		return KindCover, nil
	default:
		return "", fmt.Errorf("index: unknown kind %q", name)
	}
}

// Resolve turns KindAuto into a concrete kind for the given data shape. Large,
// dense collections get a cover tree; everything else is scanned. The dot
// distance is not a metric, so it always resolves to brute force.
func Resolve(kind Kind, distance vector.DistanceType, docCount, dim int) Kind {
	if distance.OrDefault() == vector.Dot {
		return KindBrute
	}
	if kind == KindBrute || kind == KindCover {
		return kind
	}
	if docCount >= autoCoverMinDocs && dim >= autoCoverMinDim {
		if float64(docCount)/float64(dim) >= autoCoverMinDensity {
			return KindCover
		}
	}
	return KindBrute
}
