package scriptruntime

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Unit is one compiled script: its interpreter and the callable it declares.
// A Unit is immutable once compiled; replacing a script compiles a new Unit.
type Unit struct {
	name   string
	source string
	params []Param

	fn reflect.Value
	// interpreter entry is serialized per unit
	mu sync.Mutex

	// calls whose caller gave up but which still run or wait for mu
	abandoned atomic.Int32
}

// Compile interprets source and resolves the top-level function name.
// Nothing is published: a failed compile leaves no trace.
func Compile(name, source string) (*Unit, error) {
	src := prepareSource(source)

	params, err := introspect(name, src)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}

	if _, err := evalSafely(i, src); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEval, name, err)
	}

	fn, err := evalSafely(i, "main."+name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCallableNotFound, name, err)
	}
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is a %s, not a function", ErrCallableNotFound, name, fn.Kind())
	}
	if fn.Type().NumOut() > 2 {
		return nil, fmt.Errorf("%w: %s returns %d values", ErrUnsupportedSignature, name, fn.Type().NumOut())
	}

	return &Unit{name: name, source: source, params: params, fn: fn}, nil
}

// Name returns the callable's name
func (u *Unit) Name() string { return u.name }

// Source returns the script text the unit was compiled from
func (u *Unit) Source() string { return u.source }

// Params returns every declared parameter, the execution context included.
func (u *Unit) Params() []Param {
	out := make([]Param, len(u.params))
	copy(out, u.params)
	return out
}

// Call invokes the callable. args must match the declared parameters,
// execution context first.
//
// A cancelled ctx abandons the wait, not the interpreted call: the call runs
// to completion and keeps the unit busy meanwhile. Abandoned calls are logged
// and counted by Abandoned. A call whose ctx is done before it gets the unit
// is skipped.
func (u *Unit) Call(ctx context.Context, args []any) (any, error) {
	in, err := coerceArgs(u.fn.Type(), args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", u.name, err)
	}

	done := make(chan outcome, 1)

	go func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if err := ctx.Err(); err != nil {
			done <- outcome{err: err}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %s: %v", ErrCallPanicked, u.name, r)}
			}
		}()

		result, err := unpackResults(u.fn.Call(in))
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		u.abandon(done)
		return nil, fmt.Errorf("%s: %w", u.name, ctx.Err())
	}
}

// Abandoned returns the number of calls still running or queued on the unit
// after their callers gave up.
func (u *Unit) Abandoned() int {
	return int(u.abandoned.Load())
}

type outcome struct {
	result any
	err    error
}

func (u *Unit) abandon(done <-chan outcome) {
	pending := u.abandoned.Add(1)
	log.Warn().
		Str("tool", u.name).
		Int32("abandoned", pending).
		Msg("Script call abandoned, tool stays busy until it returns")

	go func() {
		<-done
		left := u.abandoned.Add(-1)
		log.Info().Str("tool", u.name).Int32("abandoned", left).Msg("Abandoned script call finished")
	}()
}

// unpackResults maps the callable's return values onto (value, error).
// A lone error result or a non-nil trailing error is reported as the error.
func unpackResults(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type().Implements(errorType) && out[0].Type().Kind() == reflect.Interface {
			return nil, asError(out[0])
		}
		return valueOf(out[0]), nil
	default:
		if err := asError(out[len(out)-1]); err != nil {
			return nil, err
		}
		return valueOf(out[0]), nil
	}
}

func asError(v reflect.Value) error {
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return nil
	}
	if err, ok := v.Interface().(error); ok {
		return err
	}
	return nil
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// evalSafely runs an interpreter evaluation, turning interpreter panics into errors.
func evalSafely(i *interp.Interpreter, src string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	return i.Eval(src)
}
