package vector

import (
	"strconv"
	"strings"
)

// ColumnType describes how a declared SQL column type relates to embeddings.
type ColumnType struct {
	// Declared is the type as written in the table DDL.
	Declared string
	// Vector is true for embedding-bearing columns.
	Vector bool
	// Dim is the declared dimension, or 0 when the declaration carries none.
	Dim int
}

var vectorTypePrefixes = []string{"VECTOR", "EMBEDDING", "F32_BLOB"}

// ParseColumnType classifies a declared column type. VECTOR(n), EMBEDDING,
// F32_BLOB(n) and plain BLOB columns hold embeddings.
func ParseColumnType(declared string) ColumnType {
	ret := ColumnType{Declared: declared}
	upper := strings.ToUpper(strings.TrimSpace(declared))
	if upper == "BLOB" {
		ret.Vector = true
		return ret
	}
	for _, prefix := range vectorTypePrefixes {
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		rest := strings.TrimSpace(upper[len(prefix):])
		if rest != "" && !strings.HasPrefix(rest, "(") {
			continue
		}
		ret.Vector = true
		if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
			if n, err := strconv.Atoi(strings.TrimSpace(rest[1 : len(rest)-1])); err == nil && n > 0 {
				ret.Dim = n
			}
		}
		return ret
	}
	return ret
}

// IsJSON reports whether the declared type marks a JSON document column.
func (c ColumnType) IsJSON() bool {
	return strings.EqualFold(strings.TrimSpace(c.Declared), "JSON")
}
