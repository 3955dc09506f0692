package scriptruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multiplySource = `//go:build toolscript

package main

func multiply(executionParams string, a float64, b float64) float64 {
	return a * b
}
`

func TestCompile(t *testing.T) {
	unit, err := Compile("multiply", multiplySource)
	require.NoError(t, err)

	assert.Equal(t, "multiply", unit.Name())
	assert.Equal(t, []Param{
		{Name: "executionParams", Type: "string"},
		{Name: "a", Type: "number"},
		{Name: "b", Type: "number"},
	}, unit.Params())

	out, err := unit.Call(context.Background(), []any{"null", 2.0, json.Number("3")})
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestCompile_AddsPackageClause(t *testing.T) {
	unit, err := Compile("greet", `
import "fmt"

func greet(ctx string, name string) string {
	return fmt.Sprintf("hello %s", name)
}
`)
	require.NoError(t, err)

	out, err := unit.Call(context.Background(), []any{"{}", "ana"})
	require.NoError(t, err)
	assert.Equal(t, "hello ana", out)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"syntax", "func broken(ctx string {", ErrSyntax},
		{"wrong package", "package tools\n\nfunc broken(ctx string) {}", ErrUnsupportedSignature},
		{"missing callable", "func other(ctx string) {}", ErrCallableNotFound},
		{"variadic", "func broken(ctx string, xs ...int) {}", ErrUnsupportedSignature},
		{"generic", "func broken[T any](ctx string, x T) {}", ErrUnsupportedSignature},
		{"no parameters", "func broken() {}", ErrUnsupportedSignature},
		{"unnamed parameters", "func broken(string, int) {}", ErrUnsupportedSignature},
		{"type error", "func broken(ctx string) int { return ctx }", ErrEval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile("broken", tt.source)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnit_Call(t *testing.T) {
	t.Run("argument mismatch", func(t *testing.T) {
		unit, err := Compile("multiply", multiplySource)
		require.NoError(t, err)

		_, err = unit.Call(context.Background(), []any{"null", 1.0})
		assert.ErrorIs(t, err, ErrArgument)

		_, err = unit.Call(context.Background(), []any{"null", "x", 1.0})
		assert.ErrorIs(t, err, ErrArgument)
	})

	t.Run("non-integral float into int", func(t *testing.T) {
		unit, err := Compile("inc", "func inc(ctx string, n int) int { return n + 1 }")
		require.NoError(t, err)

		out, err := unit.Call(context.Background(), []any{"null", 41.0})
		require.NoError(t, err)
		assert.Equal(t, 42, out)

		_, err = unit.Call(context.Background(), []any{"null", 1.5})
		assert.ErrorIs(t, err, ErrArgument)
	})

	t.Run("error result", func(t *testing.T) {
		unit, err := Compile("fails", `
import "errors"

func fails(ctx string) (string, error) {
	return "", errors.New("bad input")
}
`)
		require.NoError(t, err)

		_, err = unit.Call(context.Background(), []any{"null"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad input")
	})

	t.Run("panic", func(t *testing.T) {
		unit, err := Compile("explode", `func explode(ctx string) int { panic("boom") }`)
		require.NoError(t, err)

		_, err = unit.Call(context.Background(), []any{"null"})
		assert.ErrorIs(t, err, ErrCallPanicked)
	})

	t.Run("composite arguments", func(t *testing.T) {
		unit, err := Compile("total", `
func total(ctx string, xs []float64, weights map[string]float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x * weights["scale"]
	}
	return sum
}
`)
		require.NoError(t, err)

		out, err := unit.Call(context.Background(), []any{
			"null",
			[]any{1.0, json.Number("2")},
			map[string]any{"scale": 10},
		})
		require.NoError(t, err)
		assert.Equal(t, 30.0, out)
	})

	t.Run("cancelled context", func(t *testing.T) {
		unit, err := Compile("slow", `
import "time"

func slow(ctx string) int {
	time.Sleep(200 * time.Millisecond)
	return 1
}
`)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err = unit.Call(ctx, []any{"null"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("abandoned call keeps the unit busy", func(t *testing.T) {
		unit, err := Compile("slow", `
import "time"

func slow(ctx string) int {
	time.Sleep(300 * time.Millisecond)
	return 1
}
`)
		require.NoError(t, err)

		call := func(timeout time.Duration) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, err := unit.Call(ctx, []any{"null"})
			return err
		}

		assert.ErrorIs(t, call(10*time.Millisecond), context.DeadlineExceeded)
		assert.Equal(t, 1, unit.Abandoned())

		// queued behind the running call
		assert.ErrorIs(t, call(10*time.Millisecond), context.DeadlineExceeded)
		assert.Equal(t, 2, unit.Abandoned())

		assert.Eventually(t, func() bool { return unit.Abandoned() == 0 }, 2*time.Second, 10*time.Millisecond)
		assert.NoError(t, call(2*time.Second))
	})
}

func TestRuntime_BindUnbind(t *testing.T) {
	rt := New()

	first, err := Compile("multiply", multiplySource)
	require.NoError(t, err)
	rt.Bind(first)

	names, err := rt.Introspect("multiply")
	require.NoError(t, err)
	assert.Equal(t, []string{"executionParams", "a", "b"}, names)

	second, err := Compile("multiply", "func multiply(ctx string, a float64, b float64, c float64) float64 { return a * b * c }")
	require.NoError(t, err)
	rt.Bind(second)

	got, ok := rt.Lookup("multiply")
	require.True(t, ok)
	assert.Same(t, second, got)

	// the replaced unit stays callable
	out, err := first.Call(context.Background(), []any{"null", 2.0, 2.0})
	require.NoError(t, err)
	assert.Equal(t, 4.0, out)

	assert.True(t, rt.Unbind("multiply"))
	assert.False(t, rt.Unbind("multiply"))
	assert.Empty(t, rt.Names())

	_, err = rt.Introspect("multiply")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestRuntime_Eval(t *testing.T) {
	rt := New()
	tools := []Signature{{Name: "multiply", Arity: 2}, {Name: "add", Arity: 2}}

	invoke := func(_ context.Context, name string, args []any) (any, error) {
		a, b := args[0].(float64), args[1].(float64)
		switch name {
		case "multiply":
			return a * b, nil
		case "add":
			return a + b, nil
		}
		return nil, fmt.Errorf("unknown %s", name)
	}

	t.Run("expression", func(t *testing.T) {
		out, err := rt.Eval(context.Background(), "multiply(2.0, 3.5)", tools, invoke)
		require.NoError(t, err)
		assert.Equal(t, 7.0, out)
	})

	t.Run("nested calls", func(t *testing.T) {
		out, err := rt.Eval(context.Background(), "  add(multiply(2.0, 3.0), 1.0)", tools, invoke)
		require.NoError(t, err)
		assert.Equal(t, 7.0, out)
	})

	t.Run("statements", func(t *testing.T) {
		out, err := rt.Eval(context.Background(), "x := multiply(2.0, 2.0)\nreturn add(x, 1.0)", tools, invoke)
		require.NoError(t, err)
		assert.Equal(t, 5.0, out)
	})

	t.Run("tool failure", func(t *testing.T) {
		failing := func(context.Context, string, []any) (any, error) {
			return nil, errors.New("tool failed")
		}
		_, err := rt.Eval(context.Background(), "multiply(1.0, 2.0)", tools, failing)
		require.Error(t, err)
		assert.Equal(t, "tool failed", err.Error())
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := rt.Eval(context.Background(), "divide(1.0, 2.0)", tools, invoke)
		assert.ErrorIs(t, err, ErrEval)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := rt.Eval(context.Background(), "   ", tools, invoke)
		assert.ErrorIs(t, err, ErrSyntax)
	})
}

func TestWrapAdHoc(t *testing.T) {
	src := wrapAdHoc("multiply(1, 2)", []Signature{{Name: "multiply", Arity: 2}, {Name: "bad-name", Arity: 1}})

	assert.Contains(t, src, `multiply := func(p0, p1 interface{}) interface{} { return _host.Invoke("multiply", []interface{}{p0, p1}) }`)
	assert.Contains(t, src, "return multiply(1, 2)")
	assert.NotContains(t, src, "bad-name")
}
