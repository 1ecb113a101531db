package row

import (
	"fmt"

	gojson "github.com/goccy/go-json"
)

// Row is an ordered set of named fields.
type Row struct {
	names  []string
	values map[string]Value
}

// New creates an empty row with capacity for n fields.
func New(n int) *Row {
	return &Row{names: make([]string, 0, n), values: make(map[string]Value, n)}
}

// Of builds a row from plain Go values; handy in tests.
func Of(fields map[string]any) (*Row, error) {
	r := New(len(fields))
	for name, v := range fields {
		value, err := ValueOf(v)
		if err != nil {
			return nil, fmt.Errorf("row: field %q: %w", name, err)
		}
		r.Set(name, value)
	}
	return r, nil
}

// Set adds or replaces a field.
func (r *Row) Set(name string, value Value) {
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = value
}

// Get returns the field value and whether it is present.
func (r *Row) Get(name string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.values[name]
	return v, ok
}

// Names returns field names in insertion order.
func (r *Row) Names() []string {
	if r == nil {
		return nil
	}
	return r.names
}

// Len returns the number of fields.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Map converts the row into a plain map.
func (r *Row) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, name := range r.Names() {
		out[name] = r.values[name].Interface()
	}
	return out
}

// MarshalJSON encodes the row as a JSON object.
func (r *Row) MarshalJSON() ([]byte, error) {
	return gojson.Marshal(r.Map())
}

// Decode maps the whole row onto dest, which must be a non-nil pointer.
// Field names match struct json tags (or names, case-insensitively); a value
// whose variant cannot populate the destination field is an error.
func Decode(r *Row, dest any) error {
	data, err := gojson.Marshal(r.Map())
	if err != nil {
		return fmt.Errorf("row: encode: %w", err)
	}
	if err := gojson.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("row: decode into %T: %w", dest, err)
	}
	return nil
}
