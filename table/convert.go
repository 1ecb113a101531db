package table

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/viant/vecindex/row"
	"github.com/viant/vecindex/vector"
)

// readRows drains rows into row values. Embedding BLOBs become lists of
// numbers, other BLOBs base64 strings and JSON columns nested values.
func readRows(rows *sql.Rows, schema *Schema) ([]*row.Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types := make([]vector.ColumnType, len(names))
	for i, name := range names {
		if column, ok := schema.Column(name); ok {
			types[i] = column.Type
		}
	}
	var ret []*row.Row
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := row.New(len(names))
		for i, name := range names {
			value, err := convertValue(raw[i], types[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			r.Set(name, value)
		}
		ret = append(ret, r)
	}
	return ret, rows.Err()
}

func convertValue(v any, columnType vector.ColumnType) (row.Value, error) {
	switch actual := v.(type) {
	case []byte:
		if columnType.IsJSON() {
			return parseJSON(actual)
		}
		if columnType.Vector {
			vec, err := vector.DecodeEmbedding(actual)
			if err != nil {
				return row.Value{}, err
			}
			return row.ValueOf(vec)
		}
		return row.StringValue(base64.StdEncoding.EncodeToString(actual)), nil
	case string:
		if columnType.IsJSON() {
			return parseJSON([]byte(actual))
		}
		return row.StringValue(actual), nil
	case time.Time:
		return row.StringValue(actual.Format(time.RFC3339Nano)), nil
	default:
		return row.ValueOf(v)
	}
}

func parseJSON(data []byte) (row.Value, error) {
	if len(data) == 0 {
		return row.NullValue(), nil
	}
	var doc any
	decoder := gojson.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return row.Value{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return row.ValueOf(doc)
}
