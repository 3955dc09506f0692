// Package bridge converts values produced by the script runtime into plain
// host values that can be encoded as JSON responses.
//
// Integers stay integers and floats stay floats. Sequences are materialized
// eagerly and keep their order; keyed structures become map[string]any.
package bridge

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Opaque marks host values that must cross the bridge untouched.
type Opaque interface {
	Opaque()
}

var bytesType = reflect.TypeOf([]byte(nil))

// Convert recursively converts v into a host-native value.
func Convert(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case Opaque:
		return x
	case reflect.Value:
		if !x.IsValid() {
			return nil
		}
		if !x.CanInterface() {
			return x
		}
		return Convert(x.Interface())
	case string, bool, int64, uint64, float64:
		return x
	case json.Number:
		return convertNumber(x)
	case []any:
		if isPlainSlice(x) {
			return x
		}
	case map[string]any:
		if isPlainMap(x) {
			return x
		}
	}
	return convertValue(reflect.ValueOf(v))
}

// convertNumber keeps integers exact. An integer literal outside the 64-bit
// ranges stays a json.Number, which encodes back to the same digits.
func convertNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if isIntegerLiteral(n.String()) {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u
		}
		return n
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func isIntegerLiteral(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".eE")
}

func convertValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Convert(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return []any{}
		}
		if rv.Type() == bytesType {
			return rv.Interface()
		}
		return convertSequence(rv)
	case reflect.Array:
		return convertSequence(rv)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(Convert(iter.Key()))] = Convert(iter.Value())
		}
		return out
	case reflect.Struct:
		return convertStruct(rv)
	default:
		// funcs, chans and unsafe pointers are host handles
		return rv.Interface()
	}
}

func convertSequence(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = Convert(rv.Index(i))
	}
	return out
}

func convertStruct(rv reflect.Value) any {
	fields := make(map[string]any)
	if err := mapstructure.Decode(rv.Interface(), &fields); err != nil {
		return rv.Interface()
	}
	for k, v := range fields {
		fields[k] = Convert(v)
	}
	return fields
}

func isPlainSlice(s []any) bool {
	for _, v := range s {
		if !isPlain(v) {
			return false
		}
	}
	return true
}

func isPlainMap(m map[string]any) bool {
	for _, v := range m {
		if !isPlain(v) {
			return false
		}
	}
	return true
}

func isPlain(v any) bool {
	switch x := v.(type) {
	case nil, string, bool, int64, uint64, float64:
		return true
	case []any:
		return isPlainSlice(x)
	case map[string]any:
		return isPlainMap(x)
	default:
		return false
	}
}
