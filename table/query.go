package table

import (
	"context"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	gojson "github.com/goccy/go-json"

	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/row"
	"github.com/viant/vecindex/vector"
)

// DistanceColumn is the column every search row carries its distance in.
const DistanceColumn = "_distance"

// DefaultLimit applies when a query sets no limit.
const DefaultLimit = 10

// Selection picks the columns a search returns besides DistanceColumn.
type Selection struct {
	names   []string
	exclude bool
}

// Columns selects exactly the named columns.
func Columns(names ...string) Selection { return Selection{names: names} }

// Exclude selects every column except the named ones.
func Exclude(names ...string) Selection { return Selection{names: names, exclude: true} }

// AllColumns selects every column.
func AllColumns() Selection { return Selection{exclude: true} }

func (s Selection) resolve(schema *Schema) ([]string, error) {
	for _, name := range s.names {
		if name == DistanceColumn {
			continue
		}
		if _, ok := schema.Column(name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, schema.Table, name)
		}
	}
	if !s.exclude {
		ret := make([]string, 0, len(s.names))
		for _, name := range s.names {
			if name != DistanceColumn {
				ret = append(ret, name)
			}
		}
		return ret, nil
	}
	skip := make(map[string]bool, len(s.names))
	for _, name := range s.names {
		skip[name] = true
	}
	ret := make([]string, 0, len(schema.Columns))
	for _, column := range schema.Columns {
		if !skip[column.Name] {
			ret = append(ret, column.Name)
		}
	}
	return ret, nil
}

// VectorQuery is a nearest-neighbor search over a Table. Methods return a
// modified copy, so a query can be shared and extended safely.
type VectorQuery struct {
	table      *Table
	vector     []float32
	limit      int
	selection  Selection
	filter     string
	filterArgs []any
	distance   vector.DistanceType
	bypass     bool
	probes     int
	refine     int
	postfilter bool
	column     string
}

// VectorSearch starts a search for the rows nearest to vec.
func (t *Table) VectorSearch(vec []float32) VectorQuery {
	return VectorQuery{table: t, vector: vec, selection: AllColumns()}
}

// Limit sets the maximum number of rows returned.
func (q VectorQuery) Limit(n int) VectorQuery {
	q.limit = n
	return q
}

// Select sets the returned columns.
func (q VectorQuery) Select(selection Selection) VectorQuery {
	q.selection = selection
	return q
}

// Where restricts the search with a SQL predicate over table columns.
func (q VectorQuery) Where(predicate string, args ...any) VectorQuery {
	q.filter = predicate
	q.filterArgs = args
	return q
}

// Distance sets the metric; with an index it must match the index metric.
func (q VectorQuery) Distance(distance vector.DistanceType) VectorQuery {
	q.distance = distance
	return q
}

// BypassVectorIndex forces an exhaustive scan.
func (q VectorQuery) BypassVectorIndex() VectorQuery {
	q.bypass = true
	return q
}

// Probes bounds how much of the index is explored.
func (q VectorQuery) Probes(probes int) VectorQuery {
	q.probes = probes
	return q
}

// RefineFactor fetches limit*refineFactor index candidates and re-ranks them
// with exact distances.
func (q VectorQuery) RefineFactor(refineFactor int) VectorQuery {
	q.refine = refineFactor
	return q
}

// Postfilter applies the Where predicate after the nearest rows were found.
// Fewer than limit rows may come back.
func (q VectorQuery) Postfilter() VectorQuery {
	q.postfilter = true
	return q
}

// Column names the vector column to search.
func (q VectorQuery) Column(name string) VectorQuery {
	q.column = name
	return q
}

// Execute runs the search and returns rows ordered by increasing distance.
func (q VectorQuery) Execute(ctx context.Context) ([]*row.Row, error) {
	t := q.table
	if len(q.vector) == 0 {
		return nil, ErrEmptyVector
	}
	schema, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}
	column, err := schema.vectorColumn(q.column)
	if err != nil {
		return nil, err
	}
	if column.Type.Dim > 0 && len(q.vector) != column.Type.Dim {
		return nil, fmt.Errorf("%w: %s.%s expects %d, got %d", ErrDimensionMismatch, t.name, column.Name, column.Type.Dim, len(q.vector))
	}
	projection, err := q.selection.resolve(schema)
	if err != nil {
		return nil, err
	}
	blob, err := vector.EncodeEmbedding(q.vector)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: %w", t.name, err)
	}
	plan := searchPlan{query: q, schema: schema, column: column.Name, projection: projection, blob: blob, limit: q.limit}
	if plan.limit <= 0 {
		plan.limit = DefaultLimit
	}
	if !q.bypass {
		idx, err := t.ensureIndex(ctx, column.Name)
		if err != nil {
			return nil, fmt.Errorf("table: search %s: load index: %w", t.name, err)
		}
		if idx != nil {
			if q.distance != vector.DistanceUnset && q.distance != idx.Distance() {
				return nil, fmt.Errorf("%w: %s.%s index uses %s, query %s", ErrDistanceMismatch, t.name, column.Name, idx.Distance(), q.distance)
			}
			plan.distance = idx.Distance()
			return plan.approximate(ctx, idx)
		}
	}
	plan.distance = q.distance.OrDefault()
	return plan.exact(ctx)
}

type searchPlan struct {
	query      VectorQuery
	schema     *Schema
	column     string
	projection []string
	blob       []byte
	limit      int
	distance   vector.DistanceType
}

func (p *searchPlan) distanceExpr() string {
	return fmt.Sprintf("%s(%s, ?) AS %s", p.distance.SQLFunction(), QuoteIdent(p.column), DistanceColumn)
}

func (p *searchPlan) selectList(qualified bool) string {
	items := make([]string, 0, len(p.projection)+1)
	for _, name := range p.projection {
		items = append(items, QuoteIdent(name))
	}
	if qualified {
		items = append(items, DistanceColumn)
	} else {
		items = append(items, p.distanceExpr())
	}
	return strings.Join(items, ", ")
}

// scored restricts rows to those with a defined distance. Cosine is NULL for
// zero-magnitude embeddings; such rows are skipped, as the indexes skip them.
func (p *searchPlan) scored() (string, []any) {
	clause := QuoteIdent(p.column) + " IS NOT NULL"
	if p.distance != vector.Cosine {
		return clause, nil
	}
	clause += fmt.Sprintf(" AND %s(%s, ?) IS NOT NULL", p.distance.SQLFunction(), QuoteIdent(p.column))
	return clause, []any{p.blob}
}

func (p *searchPlan) exact(ctx context.Context) ([]*row.Row, error) {
	q := p.query
	t := q.table
	var stmt string
	args := []any{p.blob}
	scored, scoredArgs := p.scored()
	args = append(args, scoredArgs...)
	switch {
	case q.filter != "" && q.postfilter:
		stmt = fmt.Sprintf("SELECT %s FROM (SELECT *, %s FROM %s WHERE %s ORDER BY %s LIMIT ?) WHERE (%s) ORDER BY %s",
			p.selectList(true), p.distanceExpr(), QuoteIdent(t.name), scored, DistanceColumn, q.filter, DistanceColumn)
		args = append(args, p.limit)
		args = append(args, q.filterArgs...)
	case q.filter != "":
		stmt = fmt.Sprintf("SELECT %s FROM %s WHERE %s AND (%s) ORDER BY %s, rowid LIMIT ?",
			p.selectList(false), QuoteIdent(t.name), scored, q.filter, DistanceColumn)
		args = append(args, q.filterArgs...)
		args = append(args, p.limit)
	default:
		stmt = fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s, rowid LIMIT ?",
			p.selectList(false), QuoteIdent(t.name), scored, DistanceColumn)
		args = append(args, p.limit)
	}
	return p.run(ctx, stmt, args)
}

func (p *searchPlan) approximate(ctx context.Context, idx index.Index) ([]*row.Row, error) {
	q := p.query
	t := q.table
	refine := q.refine
	if refine < 1 {
		refine = 1
	}
	opts := index.SearchOptions{Probes: q.probes}
	if q.filter != "" && !q.postfilter {
		allowed, err := p.matchingRows(ctx)
		if err != nil {
			return nil, err
		}
		if allowed.IsEmpty() {
			return nil, nil
		}
		opts.Accept = func(rowID int64) bool { return allowed.Contains(uint64(rowID)) }
	}
	candidates, err := idx.Search(q.vector, p.limit*refine, opts)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: %w", t.name, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	rowIDs := make([]int64, len(candidates))
	for i, candidate := range candidates {
		rowIDs[i] = candidate.RowID
	}
	encoded, err := gojson.Marshal(rowIDs)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: %w", t.name, err)
	}
	scored, scoredArgs := p.scored()
	args := []any{p.blob, string(encoded)}
	args = append(args, scoredArgs...)
	where := "rowid IN (SELECT value FROM json_each(?)) AND " + scored
	if q.filter != "" && q.postfilter {
		where += " AND (" + q.filter + ")"
		args = append(args, q.filterArgs...)
	}
	args = append(args, p.limit)
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s, rowid LIMIT ?",
		p.selectList(false), QuoteIdent(t.name), where, DistanceColumn)
	return p.run(ctx, stmt, args)
}

// matchingRows collects the rowids passing the Where predicate.
func (p *searchPlan) matchingRows(ctx context.Context) (*roaring64.Bitmap, error) {
	q := p.query
	t := q.table
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf("SELECT rowid FROM %s WHERE (%s)", QuoteIdent(t.name), q.filter), q.filterArgs...)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: filter: %w", t.name, err)
	}
	defer rows.Close()
	ret := roaring64.New()
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			return nil, fmt.Errorf("table: search %s: filter: %w", t.name, err)
		}
		ret.Add(uint64(rowID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table: search %s: filter: %w", t.name, err)
	}
	return ret, nil
}

func (p *searchPlan) run(ctx context.Context, stmt string, args []any) ([]*row.Row, error) {
	t := p.query.table
	rows, err := t.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: %w", t.name, err)
	}
	defer rows.Close()
	ret, err := readRows(rows, p.schema)
	if err != nil {
		return nil, fmt.Errorf("table: search %s: %w", t.name, err)
	}
	return ret, nil
}
