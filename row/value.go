package row

import (
	"fmt"
	"sort"
	"strconv"

	gojson "github.com/goccy/go-json"
)

// Kind enumerates value variants.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Object:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single field value. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	i      int64
	isInt  bool
	str    string
	list   []Value
	object map[string]Value
}

// NullValue returns the null value.
func NullValue() Value { return Value{} }

// BoolValue wraps a boolean.
func BoolValue(v bool) Value { return Value{kind: Bool, b: v} }

// NumberValue wraps a number.
func NumberValue(v float64) Value { return Value{kind: Number, num: v} }

// IntValue wraps an integer number; it keeps the exact int64 alongside the
// float64 form.
func IntValue(v int64) Value { return Value{kind: Number, num: float64(v), i: v, isInt: true} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{kind: String, str: v} }

// ListValue wraps a list.
func ListValue(items ...Value) Value { return Value{kind: List, list: items} }

// ObjectValue wraps a nested object.
func ObjectValue(fields map[string]Value) Value { return Value{kind: Object, object: fields} }

// Kind returns the variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// AsBool returns the boolean and whether v is one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsNumber returns the number and whether v is one.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == Number }

// AsInt returns the exact integer and whether v holds an integer number.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == Number && v.isInt }

// AsString returns the string and whether v is one.
func (v Value) AsString() (string, bool) { return v.str, v.kind == String }

// AsList returns the items and whether v is a list.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == List }

// AsObject returns the fields and whether v is an object.
func (v Value) AsObject() (map[string]Value, bool) { return v.object, v.kind == Object }

// Interface converts v into plain Go values (nil, bool, int64, float64,
// string, []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		if v.isInt {
			return v.i
		}
		return v.num
	case String:
		return v.str
	case List:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.object))
		for k, item := range v.object {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// GoString renders the value for debugging.
func (v Value) GoString() string {
	switch v.kind {
	case String:
		return strconv.Quote(v.str)
	case Object:
		keys := make([]string, 0, len(v.object))
		for k := range v.object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += ", "
			}
			s += strconv.Quote(k) + ": " + v.object[k].GoString()
		}
		return s + "}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ValueOf converts plain Go values into a Value.
func ValueOf(v any) (Value, error) {
	switch actual := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return actual, nil
	case bool:
		return BoolValue(actual), nil
	case int:
		return IntValue(int64(actual)), nil
	case int32:
		return IntValue(int64(actual)), nil
	case int64:
		return IntValue(actual), nil
	case gojson.Number:
		if i, err := actual.Int64(); err == nil {
			return IntValue(i), nil
		}
		f, err := actual.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("row: invalid number %q: %w", actual, err)
		}
		return NumberValue(f), nil
	case float32:
		return NumberValue(float64(actual)), nil
	case float64:
		return NumberValue(actual), nil
	case string:
		return StringValue(actual), nil
	case []float32:
		items := make([]Value, len(actual))
		for i, f := range actual {
			items[i] = NumberValue(float64(f))
		}
		return ListValue(items...), nil
	case []any:
		items := make([]Value, len(actual))
		for i, item := range actual {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = converted
		}
		return ListValue(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(actual))
		for k, item := range actual {
			converted, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = converted
		}
		return ObjectValue(fields), nil
	default:
		return Value{}, fmt.Errorf("row: unsupported value type %T", v)
	}
}
