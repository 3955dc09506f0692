package scriptruntime

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// coerceArgs converts host values into the parameter types of fn.
func coerceArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	if ft.NumIn() != len(args) {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrArgument, ft.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := coerce(arg, ft.In(i))
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %v", ErrArgument, i, err)
		}
		in[i] = v
	}
	return in, nil
}

func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Map, reflect.Slice, reflect.Pointer, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a valid %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f, ok := v.(float64); ok && f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
		}
		n, err := cast.ToInt64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(t), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if f, ok := v.(float64); ok && f != math.Trunc(f) {
			return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
		}
		n, err := cast.ToUint64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(t), nil

	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(t), nil

	case reflect.String:
		switch s := v.(type) {
		case json.Number:
			return reflect.ValueOf(s.String()).Convert(t), nil
		case []byte:
			return reflect.ValueOf(string(s)).Convert(t), nil
		}

	case reflect.Bool:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(t), nil

	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			break
		}
		m, err := cast.ToStringMapE(v)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeMapWithSize(t, len(m))
		for k, elem := range m {
			ev, err := coerce(elem, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return out, nil

	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := coerce(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}

	if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}
