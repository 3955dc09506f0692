package scriptruntime

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"reflect"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Signature names a tool visible to ad hoc scripts and its argument count.
type Signature struct {
	Name  string
	Arity int
}

// InvokeFunc runs a registered tool on behalf of an ad hoc script.
type InvokeFunc func(ctx context.Context, name string, args []any) (any, error)

const hostPackage = "toolhost"

// errAborted unwinds the interpreted script after a tool call failed.
var errAborted = errors.New("script aborted")

// Eval evaluates ad hoc script text. Every tool in tools is callable from the
// text by name with its declared arguments; calls are routed through invoke.
//
// text is either a single expression, whose value is the result, or a
// statement list that may end in a return statement.
func (r *Runtime) Eval(ctx context.Context, text string, tools []Signature, invoke InvokeFunc) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty script", ErrSyntax)
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	hostInvoke := func(name string, args []interface{}) interface{} {
		out, err := invoke(ctx, name, args)
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			panic(errAborted)
		}
		return out
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(interp.Exports{
		hostPackage + "/" + hostPackage: {
			"Invoke": reflect.ValueOf(hostInvoke),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to load host symbols: %w", err)
	}

	src := wrapAdHoc(text, tools)
	if _, err := evalSafely(i, src); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEval, err)
	}
	entry, err := evalSafely(i, "main.EvalScript")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEval, err)
	}
	run, ok := entry.Interface().(func() interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected entry point %s", ErrEval, entry.Type())
	}

	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				mu.Lock()
				err := firstErr
				mu.Unlock()
				if err == nil {
					err = fmt.Errorf("%w: %v", ErrCallPanicked, rec)
				}
				done <- outcome{err: err}
			}
		}()
		done <- outcome{result: run()}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// wrapAdHoc builds the program evaluating text, with one shim per tool.
func wrapAdHoc(text string, tools []Signature) string {
	var b strings.Builder
	b.WriteString("package main\n\n")
	fmt.Fprintf(&b, "import _host %q\n\n", hostPackage)
	b.WriteString("func EvalScript() interface{} {\n")

	for _, tool := range tools {
		if !token.IsIdentifier(tool.Name) || tool.Arity < 0 {
			continue
		}
		params := make([]string, tool.Arity)
		for n := range params {
			params[n] = fmt.Sprintf("p%d", n)
		}
		list := strings.Join(params, ", ")
		decl := ""
		if list != "" {
			decl = list + " interface{}"
		}
		fmt.Fprintf(&b, "\t%s := func(%s) interface{} { return _host.Invoke(%q, []interface{}{%s}) }\n",
			tool.Name, decl, tool.Name, list)
		fmt.Fprintf(&b, "\t_ = %s\n", tool.Name)
	}

	if isExpression(text) {
		fmt.Fprintf(&b, "\treturn %s\n", strings.TrimSpace(text))
	} else {
		b.WriteString(text)
		b.WriteString("\n\treturn nil\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func isExpression(text string) bool {
	_, err := parser.ParseExpr(strings.TrimSpace(text))
	return err == nil
}
