package table

import (
	"context"
	"fmt"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/viant/vecindex/index"
	"github.com/viant/vecindex/index/bruteforce"
	"github.com/viant/vecindex/index/cover"
	"github.com/viant/vecindex/internal/cover/tree"
	"github.com/viant/vecindex/vector"
)

// IndexOptions configure CreateIndex.
type IndexOptions struct {
	// Kind selects the structure; KindAuto resolves from the data shape on
	// every build.
	Kind index.Kind
	// Distance is the metric approximate queries must use. Unset means L2.
	Distance vector.DistanceType
	// CoverBase overrides the cover tree base when greater than 1.
	CoverBase float32
	// CoverBoundLevel prunes with level bounds instead of per-node radii.
	CoverBoundLevel bool
}

// indexSpec is the persisted form of IndexOptions.
type indexSpec struct {
	Kind            index.Kind `json:"kind"`
	Distance        string     `json:"distance"`
	CoverBase       float32    `json:"coverBase,omitempty"`
	CoverBoundLevel bool       `json:"coverBoundLevel,omitempty"`
}

func (o IndexOptions) spec() indexSpec {
	kind := o.Kind
	if kind == "" {
		kind = index.KindAuto
	}
	return indexSpec{Kind: kind, Distance: o.Distance.OrDefault().String(), CoverBase: o.CoverBase, CoverBoundLevel: o.CoverBoundLevel}
}

func parseIndexSpec(options string) (indexSpec, error) {
	var ret indexSpec
	if err := gojson.Unmarshal([]byte(options), &ret); err != nil {
		return ret, fmt.Errorf("invalid index options %q: %w", options, err)
	}
	return ret, nil
}

func (s indexSpec) distance() vector.DistanceType {
	d, err := vector.ParseDistanceType(s.Distance)
	if err != nil {
		return vector.DefaultDistance
	}
	return d.OrDefault()
}

// newIndex creates an empty index of the kind resolved for the data shape.
func (s indexSpec) newIndex(docCount, dim int) (index.Index, error) {
	distance := s.distance()
	switch index.Resolve(s.Kind, distance, docCount, dim) {
	case index.KindCover:
		var opts []cover.Option
		if s.CoverBase > 1 {
			opts = append(opts, cover.WithBase(s.CoverBase))
		}
		if s.CoverBoundLevel {
			opts = append(opts, cover.WithBoundStrategy(tree.BoundLevel))
		}
		return cover.New(distance, opts...)
	default:
		return bruteforce.New(distance), nil
	}
}

// IndexInfo describes the index of a column.
type IndexInfo struct {
	Column     string
	Kind       index.Kind
	Distance   vector.DistanceType
	Generation int64
	// Stale is true when writes cleared the persisted index.
	Stale bool
}

// CreateIndex registers an index on column (or the only vector column when
// empty) and builds it. Re-creating replaces the options.
func (t *Table) CreateIndex(ctx context.Context, column string, opts IndexOptions) error {
	if opts.Kind != "" && opts.Kind != index.KindAuto && opts.Kind != index.KindBrute && opts.Kind != index.KindCover {
		return fmt.Errorf("table: create index on %s: unknown kind %q", t.name, opts.Kind)
	}
	if opts.Distance != vector.DistanceUnset && !opts.Distance.Valid() {
		return fmt.Errorf("table: create index on %s: invalid distance %d", t.name, opts.Distance)
	}
	schema, err := t.Schema(ctx)
	if err != nil {
		return err
	}
	target, err := schema.vectorColumn(column)
	if err != nil {
		return err
	}
	if opts.Kind == index.KindCover && opts.Distance == vector.Dot {
		return fmt.Errorf("table: create index on %s.%s: cover index does not support %s", t.name, target.Name, opts.Distance)
	}
	options, err := gojson.Marshal(opts.spec())
	if err != nil {
		return err
	}
	if err := ensureVectorStorage(ctx, t.db); err != nil {
		return fmt.Errorf("table: create index on %s: %w", t.name, err)
	}
	if err := t.ensureTriggers(ctx); err != nil {
		return fmt.Errorf("table: create index on %s: %w", t.name, err)
	}
	if _, err := t.db.ExecContext(ctx, `
INSERT INTO vector_storage(table_name, column_name, options, generation, "index") VALUES(?, ?, ?, 0, NULL)
ON CONFLICT(table_name, column_name) DO UPDATE SET options = excluded.options, generation = generation + 1, "index" = NULL`,
		t.name, target.Name, string(options)); err != nil {
		return fmt.Errorf("table: create index on %s.%s: %w", t.name, target.Name, err)
	}
	t.cache.drop(target.Name)
	if _, err := t.ensureIndex(ctx, target.Name); err != nil {
		return fmt.Errorf("table: create index on %s.%s: %w", t.name, target.Name, err)
	}
	t.logger.Debug("index created", zap.String("table", t.name), zap.String("column", target.Name),
		zap.String("kind", string(opts.spec().Kind)), zap.String("distance", opts.spec().Distance))
	return nil
}

// DropIndex removes the index of column. Queries scan the table afterwards.
func (t *Table) DropIndex(ctx context.Context, column string) error {
	if _, err := t.db.ExecContext(ctx, `DELETE FROM vector_storage WHERE table_name = ? AND column_name = ?`, t.name, column); err != nil {
		if isMissingTable(err) {
			return fmt.Errorf("table: drop index on %s.%s: %w", t.name, column, ErrNoIndex)
		}
		return fmt.Errorf("table: drop index on %s.%s: %w", t.name, column, err)
	}
	t.cache.drop(column)
	var remaining int
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_storage WHERE table_name = ?`, t.name).Scan(&remaining); err != nil {
		return fmt.Errorf("table: drop index on %s.%s: %w", t.name, column, err)
	}
	if remaining == 0 {
		if err := t.dropTriggers(ctx); err != nil {
			return fmt.Errorf("table: drop index on %s.%s: %w", t.name, column, err)
		}
	}
	return nil
}

// IndexInfo reports the index of column; ErrNoIndex when there is none.
func (t *Table) IndexInfo(ctx context.Context, column string) (*IndexInfo, error) {
	stored, ok, err := t.loadStored(ctx, column)
	if err != nil {
		return nil, fmt.Errorf("table: index info %s.%s: %w", t.name, column, err)
	}
	if !ok {
		return nil, fmt.Errorf("table: index info %s.%s: %w", t.name, column, ErrNoIndex)
	}
	return &IndexInfo{
		Column:     column,
		Kind:       stored.spec.Kind,
		Distance:   stored.spec.distance(),
		Generation: stored.generation,
		Stale:      len(stored.blob) == 0,
	}, nil
}

// Reindex rebuilds and persists the index of column, returning the number of
// indexed vectors.
func (t *Table) Reindex(ctx context.Context, column string) (int, error) {
	if _, err := t.db.ExecContext(ctx, `UPDATE vector_storage SET generation = generation + 1, "index" = NULL WHERE table_name = ? AND column_name = ?`,
		t.name, column); err != nil && !isMissingTable(err) {
		return 0, fmt.Errorf("table: reindex %s.%s: %w", t.name, column, err)
	}
	t.cache.drop(column)
	idx, err := t.ensureIndex(ctx, column)
	if err != nil {
		return 0, fmt.Errorf("table: reindex %s.%s: %w", t.name, column, err)
	}
	if idx == nil {
		return 0, fmt.Errorf("table: reindex %s.%s: %w", t.name, column, ErrNoIndex)
	}
	return idx.Len(), nil
}

// indexCache keeps loaded indexes per column tagged with the generation they
// were built at.
type indexCache struct {
	mu      sync.RWMutex
	entries map[string]cachedIndex
	group   singleflight.Group
}

type cachedIndex struct {
	generation int64
	idx        index.Index
}

func newIndexCache() *indexCache {
	return &indexCache{entries: make(map[string]cachedIndex)}
}

func (c *indexCache) get(column string, generation int64) (index.Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[column]
	if !ok || entry.generation != generation {
		return nil, false
	}
	return entry.idx, true
}

func (c *indexCache) set(column string, generation int64, idx index.Index) {
	c.mu.Lock()
	c.entries[column] = cachedIndex{generation: generation, idx: idx}
	c.mu.Unlock()
}

func (c *indexCache) drop(column string) {
	c.mu.Lock()
	delete(c.entries, column)
	c.mu.Unlock()
}

// ensureIndex returns the current index of column, loading or rebuilding it
// as needed. It returns nil without error when the column has no index.
func (t *Table) ensureIndex(ctx context.Context, column string) (index.Index, error) {
	stored, ok, err := t.loadStored(ctx, column)
	if err != nil || !ok {
		return nil, err
	}
	if idx, ok := t.cache.get(column, stored.generation); ok {
		return idx, nil
	}
	// the shared build outlives any single caller; each caller waits on its own ctx
	key := fmt.Sprintf("%s@%d", column, stored.generation)
	buildCtx := context.WithoutCancel(ctx)
	ch := t.cache.group.DoChan(key, func() (any, error) {
		return t.loadOrBuild(buildCtx, column)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		idx, _ := res.Val.(index.Index)
		return idx, nil
	}
}

func (t *Table) loadOrBuild(ctx context.Context, column string) (index.Index, error) {
	stored, ok, err := t.loadStored(ctx, column)
	if err != nil || !ok {
		return nil, err
	}
	if idx, ok := t.cache.get(column, stored.generation); ok {
		return idx, nil
	}
	if len(stored.blob) > 0 {
		idx, err := decodeIndex(stored.blob)
		if err == nil {
			t.cache.set(column, stored.generation, idx)
			return idx, nil
		}
		t.logger.Warn("discarding unreadable index", zap.String("table", t.name), zap.String("column", column), zap.Error(err))
	}

	// a read-only handle builds in memory without the lock and never persists
	readOnly := false
	unlock, err := t.acquireBuildLock(ctx, column)
	switch {
	case err == nil:
		defer unlock()
		// another process may have built it while we waited
		if stored, ok, err = t.loadStored(ctx, column); err != nil || !ok {
			return nil, err
		}
		if len(stored.blob) > 0 {
			if idx, err := decodeIndex(stored.blob); err == nil {
				t.cache.set(column, stored.generation, idx)
				return idx, nil
			}
		}
	case isReadOnly(err):
		readOnly = true
	default:
		return nil, err
	}

	started := time.Now()
	rowIDs, vectors, err := t.scanVectors(ctx, column)
	if err != nil {
		return nil, err
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	idx, err := stored.spec.newIndex(len(vectors), dim)
	if err != nil {
		return nil, err
	}
	if err := idx.Build(rowIDs, vectors); err != nil {
		return nil, err
	}
	persisted := false
	if !readOnly {
		if persisted, err = t.persist(ctx, column, stored.generation, idx); err != nil && !isReadOnly(err) {
			return nil, err
		}
	}
	t.cache.set(column, stored.generation, idx)
	t.logger.Debug("index built",
		zap.String("table", t.name),
		zap.String("column", column),
		zap.String("kind", string(idx.Kind())),
		zap.Int("vectors", idx.Len()),
		zap.Int64("generation", stored.generation),
		zap.Bool("persisted", persisted),
		zap.Duration("elapsed", time.Since(started)))
	return idx, nil
}

func (t *Table) scanVectors(ctx context.Context, column string) ([]int64, [][]float32, error) {
	rows, err := t.db.QueryContext(ctx, fmt.Sprintf("SELECT rowid, %s FROM %s WHERE %s IS NOT NULL",
		QuoteIdent(column), QuoteIdent(t.name), QuoteIdent(column)))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var rowIDs []int64
	var vectors [][]float32
	for rows.Next() {
		var rowID int64
		var blob []byte
		if err := rows.Scan(&rowID, &blob); err != nil {
			return nil, nil, err
		}
		if len(blob) == 0 {
			continue
		}
		vec, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("rowid %d: %w", rowID, err)
		}
		rowIDs = append(rowIDs, rowID)
		vectors = append(vectors, vec)
	}
	return rowIDs, vectors, rows.Err()
}
