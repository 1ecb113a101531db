package engine

import (
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	sqlite "modernc.org/sqlite"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// errUndefined marks a result with no defined value; the SQL function
// returns NULL for it.
var errUndefined = errors.New("undefined")

type scalarFunc func(a, b []float32) (float64, error)

// functions maps SQL names to their implementation. All take two embedding
// BLOBs and return NULL when either side is NULL. The cosine functions also
// return NULL when either side has zero magnitude.
var functions = map[string]scalarFunc{
	"vec_cosine":          cosine,
	"vec_l2":              l2,
	"vec_dot":             dot,
	"vec_distance_cosine": cosineDistance,
	"vec_distance_dot":    dotDistance,
}

// RegisterVectorFunctions registers the vec_* scalar functions with the driver
// so they are available on connections opened after this call. It is safe to
// call repeatedly.
func RegisterVectorFunctions() error {
	registerOnce.Do(func() {
		for name, fn := range functions {
			if err := sqlite.RegisterDeterministicScalarFunction(name, 2, binaryFunction(name, fn)); err != nil {
				registerErr = fmt.Errorf("engine: register %s: %w", name, err)
				return
			}
		}
	})
	return registerErr
}

func binaryFunction(name string, fn scalarFunc) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
		}
		a, err := asEmbedding(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		b, err := asEmbedding(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if a == nil || b == nil {
			return nil, nil
		}
		v, err := fn(a, b)
		if errors.Is(err, errUndefined) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeEmbedding(v)
	default:
		return nil, fmt.Errorf("unsupported argument type %T for embedding; want BLOB", arg)
	}
}

// Local minimal helpers; package vector tests import engine, so engine
// cannot import vector.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine on empty vectors")
	}
	var d, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		d += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("cosine with zero-magnitude vector: %w", errUndefined)
	}
	return d / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

func cosineDistance(a, b []float32) (float64, error) {
	sim, err := cosine(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

func l2(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

func dot(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

func dotDistance(a, b []float32) (float64, error) {
	p, err := dot(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - p, nil
}
