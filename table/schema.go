package table

import (
	"context"
	"fmt"

	"github.com/viant/vecindex/vector"
)

// Column describes one table column.
type Column struct {
	Name string
	Type vector.ColumnType
}

// Schema lists table columns in declaration order.
type Schema struct {
	Table   string
	Columns []Column
}

// Schema introspects the table with PRAGMA table_info.
func (t *Table) Schema(ctx context.Context) (*Schema, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, t.name)
	if err != nil {
		return nil, fmt.Errorf("table: schema %s: %w", t.name, err)
	}
	defer rows.Close()
	ret := &Schema{Table: t.name}
	for rows.Next() {
		var name, declared string
		if err := rows.Scan(&name, &declared); err != nil {
			return nil, fmt.Errorf("table: schema %s: %w", t.name, err)
		}
		ret.Columns = append(ret.Columns, Column{Name: name, Type: vector.ParseColumnType(declared)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table: schema %s: %w", t.name, err)
	}
	if len(ret.Columns) == 0 {
		return nil, fmt.Errorf("table: schema %s: %w", t.name, ErrUnknownTable)
	}
	return ret, nil
}

// Column returns the named column.
func (s *Schema) Column(name string) (Column, bool) {
	for _, column := range s.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// Names returns every column name.
func (s *Schema) Names() []string {
	ret := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		ret = append(ret, column.Name)
	}
	return ret
}

// VectorColumns returns the names of embedding columns.
func (s *Schema) VectorColumns() []string {
	var ret []string
	for _, column := range s.Columns {
		if column.Type.Vector {
			ret = append(ret, column.Name)
		}
	}
	return ret
}

// FilterEmbeddings returns every column name except embedding columns.
func (s *Schema) FilterEmbeddings() []string {
	ret := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		if !column.Type.Vector {
			ret = append(ret, column.Name)
		}
	}
	return ret
}

// vectorColumn resolves the column to search: the named one, or the only
// embedding column.
func (s *Schema) vectorColumn(name string) (Column, error) {
	if name != "" {
		column, ok := s.Column(name)
		if !ok {
			return Column{}, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, s.Table, name)
		}
		if !column.Type.Vector {
			return Column{}, fmt.Errorf("%w: %s.%s (%s)", ErrNotVectorColumn, s.Table, name, column.Type.Declared)
		}
		return column, nil
	}
	candidates := s.VectorColumns()
	switch len(candidates) {
	case 0:
		return Column{}, fmt.Errorf("%w: %s", ErrNoVectorColumn, s.Table)
	case 1:
		column, _ := s.Column(candidates[0])
		return column, nil
	default:
		return Column{}, fmt.Errorf("%w: %s has %v", ErrAmbiguousVectorColumn, s.Table, candidates)
	}
}
