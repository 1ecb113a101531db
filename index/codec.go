package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/viant/vecindex/vector"
)

// MagicLen is the length of the format tag every serialized index starts with.
const MagicLen = 4

var errTruncated = errors.New("index: truncated data")

// Header precedes the vector payload in every serialized index.
type Header struct {
	Magic    string
	Distance vector.DistanceType
}

// EncodeVectors writes: magic(4), distance(uint8), dim(uint32), n(uint32),
// then per item: rowid(int64), vec(float32[dim]).
func EncodeVectors(header Header, rowIDs []int64, vectors [][]float32) ([]byte, error) {
	if len(header.Magic) != MagicLen {
		return nil, fmt.Errorf("index: invalid magic %q", header.Magic)
	}
	if len(rowIDs) != len(vectors) {
		return nil, fmt.Errorf("index: rowids and vectors length mismatch: %d != %d", len(rowIDs), len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	out := make([]byte, 0, MagicLen+9+len(rowIDs)*(8+4*dim))
	out = append(out, header.Magic...)
	out = append(out, byte(header.Distance))
	out = binary.LittleEndian.AppendUint32(out, uint32(dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(rowIDs)))
	for i, id := range rowIDs {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("index: inconsistent vector dims %d vs %d", len(vectors[i]), dim)
		}
		out = binary.LittleEndian.AppendUint64(out, uint64(id))
		for _, v := range vectors[i] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	return out, nil
}

// DecodeVectors reverses EncodeVectors and returns the remaining bytes.
func DecodeVectors(data []byte) (Header, []int64, [][]float32, []byte, error) {
	var header Header
	if len(data) < MagicLen+9 {
		return header, nil, nil, nil, errTruncated
	}
	header.Magic = string(data[:MagicLen])
	header.Distance = vector.DistanceType(data[MagicLen])
	off := MagicLen + 1
	dim := int(binary.LittleEndian.Uint32(data[off:]))
	n := int(binary.LittleEndian.Uint32(data[off+4:]))
	off += 8
	if n > 0 && (len(data)-off)/n < 8+4*dim {
		return header, nil, nil, nil, errTruncated
	}
	rowIDs := make([]int64, n)
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		rowIDs[i] = int64(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = vec
	}
	return header, rowIDs, vectors, data[off:], nil
}

// CheckShape validates Build arguments.
func CheckShape(rowIDs []int64, vectors [][]float32) (int, error) {
	if len(rowIDs) != len(vectors) {
		return 0, fmt.Errorf("index: rowids and vectors length mismatch: %d != %d", len(rowIDs), len(vectors))
	}
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("index: inconsistent vector dims %d vs %d", len(v), dim)
		}
	}
	return dim, nil
}
