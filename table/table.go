package table

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/viant/vecindex/vector"
)

// Table is a vector-searchable SQLite table. It is safe for concurrent use.
type Table struct {
	db     *sql.DB
	name   string
	logger *zap.Logger
	cache  *indexCache
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for index lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New returns a handle on an existing table. db should come from engine.Open
// so the vec_* functions are available.
func New(db *sql.DB, name string, opts ...Option) *Table {
	ret := &Table{db: db, name: name, logger: zap.NewNop(), cache: newIndexCache()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// DB returns the underlying database.
func (t *Table) DB() *sql.DB { return t.db }

// Insert adds rows in a single transaction. []float32 and []float64 values
// are stored as embedding BLOBs; maps and slices of any as JSON text.
func (t *Table) Insert(ctx context.Context, rows ...map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("table: insert into %s: %w", t.name, err)
	}
	for i, fields := range rows {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		args := make([]any, len(names))
		for j, name := range names {
			if args[j], err = bindValue(fields[name]); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("table: insert into %s: row %d column %s: %w", t.name, i, name, err)
			}
		}
		stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", QuoteIdent(t.name), quoteIdents(names), placeholders(len(names)))
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("table: insert into %s: row %d: %w", t.name, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("table: insert into %s: %w", t.name, err)
	}
	return nil
}

func bindValue(v any) (any, error) {
	switch actual := v.(type) {
	case []float32:
		return vector.EncodeEmbedding(actual)
	case []float64:
		vec := make([]float32, len(actual))
		for i, f := range actual {
			vec[i] = float32(f)
		}
		return vector.EncodeEmbedding(vec)
	case map[string]any, []any:
		data, err := gojson.Marshal(actual)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}

// QuoteIdent quotes name as an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}

// quoteLiteral returns a SQL string literal for trigger bodies, which take no
// bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sanitizeName turns a table/column pair into a trigger-safe identifier part.
func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
