package table

import "errors"

var (
	// ErrUnknownTable reports a table that does not exist.
	ErrUnknownTable = errors.New("table: unknown table")
	// ErrUnknownColumn reports a column that is not part of the table.
	ErrUnknownColumn = errors.New("table: unknown column")
	// ErrNoVectorColumn reports a table without any embedding column.
	ErrNoVectorColumn = errors.New("table: no vector column")
	// ErrAmbiguousVectorColumn reports several embedding columns and no explicit choice.
	ErrAmbiguousVectorColumn = errors.New("table: several vector columns, one must be named")
	// ErrNotVectorColumn reports a named search column that holds no embeddings.
	ErrNotVectorColumn = errors.New("table: not a vector column")
	// ErrEmptyVector reports an empty query vector.
	ErrEmptyVector = errors.New("table: empty query vector")
	// ErrDimensionMismatch reports a query vector whose size differs from the column.
	ErrDimensionMismatch = errors.New("table: vector dimension mismatch")
	// ErrDistanceMismatch reports a query metric that differs from the index metric.
	ErrDistanceMismatch = errors.New("table: distance type differs from index")
	// ErrNoIndex reports a missing index.
	ErrNoIndex = errors.New("table: no index")
)
