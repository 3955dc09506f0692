package bridge

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type handle struct{ id int }

func (handle) Opaque() {}

type point struct {
	X int
	Y float32
}

func TestConvert_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"bool", true, true},
		{"int keeps integer kind", 42, int64(42)},
		{"int8", int8(-3), int64(-3)},
		{"uint keeps unsigned", uint32(7), uint64(7)},
		{"float32 widens", float32(1.5), float64(1.5)},
		{"float64", 2.25, 2.25},
		{"large int64 without precision loss", int64(9007199254740993), int64(9007199254740993)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Convert(tt.in))
		})
	}
}

func TestConvert_Sequences(t *testing.T) {
	got := Convert([]int{3, 1, 2})
	assert.Equal(t, []any{int64(3), int64(1), int64(2)}, got)

	got = Convert([2]string{"a", "b"})
	assert.Equal(t, []any{"a", "b"}, got)

	nested := Convert([][]float64{{1.5}, {2.5, 3}})
	assert.Equal(t, []any{[]any{1.5}, []any{2.5, float64(3)}}, nested)
}

func TestConvert_Maps(t *testing.T) {
	got := Convert(map[string]int{"a": 1, "b": 2})
	assert.Equal(t, map[string]any{"a": int64(1), "b": int64(2)}, got)

	got = Convert(map[int]string{1: "one"})
	assert.Equal(t, map[string]any{"1": "one"}, got)
}

func TestConvert_Struct(t *testing.T) {
	got := Convert(point{X: 1, Y: 0.5})
	assert.Equal(t, map[string]any{"X": int64(1), "Y": float64(0.5)}, got)

	got = Convert(&point{X: 2})
	assert.Equal(t, map[string]any{"X": int64(2), "Y": float64(0)}, got)
}

func TestConvert_OpaquePassesThrough(t *testing.T) {
	h := handle{id: 9}
	assert.Equal(t, h, Convert(h))

	fn := func() {}
	out := Convert(fn)
	assert.Equal(t, reflect.ValueOf(fn).Pointer(), reflect.ValueOf(out).Pointer())

	raw := []byte("abc")
	assert.Equal(t, raw, Convert(raw))
}

func TestConvert_ReflectValue(t *testing.T) {
	assert.Equal(t, int64(5), Convert(reflect.ValueOf(5)))
	assert.Nil(t, Convert(reflect.Value{}))
}

func TestConvert_Idempotent(t *testing.T) {
	inputs := []any{
		map[string]any{"list": []int{1, 2}, "name": "x", "nested": map[string]float32{"f": 1}},
		[]any{1, "two", 3.0, nil},
		point{X: 3, Y: 4},
	}

	for _, in := range inputs {
		once := Convert(in)
		assert.Equal(t, once, Convert(once))
	}
}

func TestConvert_JSONNumber(t *testing.T) {
	assert.Equal(t, int64(12), Convert(json.Number("12")))
	assert.Equal(t, 1.25, Convert(json.Number("1.25")))
	assert.Equal(t, []any{int64(1), 2.5}, Convert([]any{json.Number("1"), json.Number("2.5")}))
	assert.Equal(t, uint64(18446744073709551615), Convert(json.Number("18446744073709551615")))
	assert.Equal(t, json.Number("123456789012345678901234567890"), Convert(json.Number("123456789012345678901234567890")))
}
