package row

import (
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	var testCases = []struct {
		description string
		input       any
		kind        Kind
		hasErr      bool
	}{
		{description: "nil", input: nil, kind: Null},
		{description: "bool", input: true, kind: Bool},
		{description: "int64", input: int64(3), kind: Number},
		{description: "float", input: 0.42, kind: Number},
		{description: "string", input: "x", kind: String},
		{description: "embedding", input: []float32{1, 2}, kind: List},
		{description: "nested", input: map[string]any{"a": []any{1, "b"}}, kind: Object},
		{description: "unsupported", input: struct{}{}, hasErr: true},
	}
	for _, testCase := range testCases {
		actual, err := ValueOf(testCase.input)
		if testCase.hasErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.kind, actual.Kind(), testCase.description)
	}
}

func TestValueAccessors(t *testing.T) {
	n, ok := NumberValue(1.5).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 1.5, n)

	_, ok = StringValue("1.5").AsNumber()
	assert.False(t, ok)

	s, ok := StringValue("rec").AsString()
	assert.True(t, ok)
	assert.Equal(t, "rec", s)

	assert.True(t, NullValue().IsNull())
	assert.Equal(t, `{"a": 1}`, ObjectValue(map[string]Value{"a": NumberValue(1)}).GoString())
}

func TestRow_SetGetOrder(t *testing.T) {
	r := New(2)
	r.Set("b", NumberValue(1))
	r.Set("a", StringValue("x"))
	r.Set("b", NumberValue(2))
	assert.Equal(t, []string{"b", "a"}, r.Names())
	v, ok := r.Get("b")
	require.True(t, ok)
	n, _ := v.AsNumber()
	assert.Equal(t, 2.0, n)
	_, ok = r.Get("missing")
	assert.False(t, ok)

	var nilRow *Row
	_, ok = nilRow.Get("a")
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Text  string            `json:"text"`
		Score float64           `json:"_distance"`
		Meta  map[string]string `json:"meta"`
	}
	r, err := Of(map[string]any{
		"_distance": 0.42,
		"id":        "rec-1",
		"text":      "hello",
		"meta":      map[string]any{"lang": "en"},
	})
	require.NoError(t, err)

	var actual payload
	require.NoError(t, Decode(r, &actual))
	assert.Equal(t, payload{Text: "hello", Score: 0.42, Meta: map[string]string{"lang": "en"}}, actual)

	bad, err := Of(map[string]any{"text": 12})
	require.NoError(t, err)
	assert.Error(t, Decode(bad, &actual))

	data, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"_distance":0.42,"id":"rec-1","text":"hello","meta":{"lang":"en"}}`, string(data))
}

func TestIntValue(t *testing.T) {
	const big int64 = 9007199254740993

	var testCases = []struct {
		description string
		input       any
		expectInt   int64
		isInt       bool
	}{
		{description: "int64 above float precision", input: big, expectInt: big, isInt: true},
		{description: "int", input: 7, expectInt: 7, isInt: true},
		{description: "json integer", input: gojson.Number("9007199254740993"), expectInt: big, isInt: true},
		{description: "json fraction", input: gojson.Number("0.5")},
		{description: "float", input: 3.0},
	}
	for _, testCase := range testCases {
		actual, err := ValueOf(testCase.input)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, Number, actual.Kind(), testCase.description)
		i, ok := actual.AsInt()
		assert.Equal(t, testCase.isInt, ok, testCase.description)
		if ok {
			assert.Equal(t, testCase.expectInt, i, testCase.description)
		}
		_, ok = actual.AsNumber()
		assert.True(t, ok, testCase.description)
	}

	type record struct {
		Seq int64 `json:"seq"`
	}
	r := New(1)
	r.Set("seq", IntValue(big))
	var actual record
	require.NoError(t, Decode(r, &actual))
	assert.Equal(t, big, actual.Seq)
	data, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"seq":9007199254740993}`, string(data))

	_, err = ValueOf(gojson.Number("x1"))
	assert.Error(t, err)
}
