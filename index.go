package vecindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viant/vecindex/query"
	"github.com/viant/vecindex/result"
	"github.com/viant/vecindex/row"
	"github.com/viant/vecindex/table"
)

// ScoredRecord is a search hit carrying the decoded row.
type ScoredRecord[T any] = result.ScoredRecord[T]

// ScoredID is a search hit carrying the id only.
type ScoredID = result.ScoredID

// Index runs similarity searches against one table. It holds no mutable
// state and is safe for concurrent use.
type Index struct {
	table   *table.Table
	model   Embedder
	idField string
	params  query.Params
	decoder result.Decoder
	logger  *zap.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for search events.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// WithScoreField reads scores from a column other than table.DistanceColumn.
func WithScoreField(name string) Option {
	return func(ix *Index) {
		if name != "" {
			ix.decoder.ScoreField = name
		}
	}
}

// NewIndex binds a table, an embedding model, the id column and search
// params. Params with tuning knobs the search type ignores are rejected.
func NewIndex(tbl *table.Table, model Embedder, idField string, params query.Params, opts ...Option) (*Index, error) {
	switch {
	case tbl == nil:
		return nil, errors.New("vecindex: table is nil")
	case model == nil:
		return nil, errors.New("vecindex: embedder is nil")
	case idField == "":
		return nil, errors.New("vecindex: id field is empty")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("vecindex: %w", err)
	}
	ret := &Index{
		table:   tbl,
		model:   model,
		idField: idField,
		params:  params,
		decoder: result.NewDecoder(idField),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}

// Params returns the search params.
func (ix *Index) Params() query.Params { return ix.params }

// Table returns the searched table.
func (ix *Index) Table() *table.Table { return ix.table }

// TopN returns the n rows nearest to text, every non-embedding column
// decoded into T. A row without a string id gets "unknown<i>", i being its
// position.
func TopN[T any](ctx context.Context, ix *Index, text string, n int) ([]ScoredRecord[T], error) {
	const op = "top_n"
	if n <= 0 {
		return []ScoredRecord[T]{}, nil
	}
	started := time.Now()
	vec, err := ix.embed(ctx, op, text)
	if err != nil {
		return nil, err
	}
	schema, err := ix.table.Schema(ctx)
	if err != nil {
		return nil, backendError(op, err)
	}
	rows, err := ix.search(ctx, vec, n, table.Columns(schema.FilterEmbeddings()...))
	if err != nil {
		return nil, backendError(op, err)
	}
	records, err := result.Records[T](ix.decoder, rows)
	if err != nil {
		return nil, decodingError(op, err)
	}
	ix.logger.Debug("search",
		zap.String("op", op),
		zap.String("table", ix.table.Name()),
		zap.Int("n", n),
		zap.Int("hits", len(records)),
		zap.Duration("elapsed", time.Since(started)))
	return records, nil
}

// TopNIDs returns the ids of the n rows nearest to text. A row without a
// string id gets "".
func (ix *Index) TopNIDs(ctx context.Context, text string, n int) ([]ScoredID, error) {
	const op = "top_n_ids"
	if n <= 0 {
		return []ScoredID{}, nil
	}
	started := time.Now()
	vec, err := ix.embed(ctx, op, text)
	if err != nil {
		return nil, err
	}
	rows, err := ix.search(ctx, vec, n, table.Columns(ix.idField))
	if err != nil {
		return nil, backendError(op, err)
	}
	ids := ix.decoder.IDs(rows)
	ix.logger.Debug("search",
		zap.String("op", op),
		zap.String("table", ix.table.Name()),
		zap.Int("n", n),
		zap.Int("hits", len(ids)),
		zap.Duration("elapsed", time.Since(started)))
	return ids, nil
}

func (ix *Index) embed(ctx context.Context, op, text string) ([]float32, error) {
	vec, err := ix.model.Embed(ctx, text)
	if err != nil {
		return nil, embeddingError(op, err)
	}
	if len(vec) == 0 {
		return nil, embeddingError(op, errors.New("model returned an empty vector"))
	}
	return vec, nil
}

func (ix *Index) search(ctx context.Context, vec []float32, n int, selection table.Selection) ([]*row.Row, error) {
	q := ix.table.VectorSearch(vec).Limit(n).Select(selection)
	return query.Apply(ix.params, q).Execute(ctx)
}
