package toolexecutor

import "context"

type execParamsKey struct{}

// EncodedParams is an execution context that already is JSON text. Script
// tools receive it verbatim; any other value, plain strings included, is
// JSON-encoded first.
type EncodedParams string

// WithExecutionParams attaches the per-call execution context to ctx.
func WithExecutionParams(ctx context.Context, params any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, execParamsKey{}, execParams{value: params})
}

// ExecutionParams returns the execution context attached to ctx and whether
// one was attached at all.
func ExecutionParams(ctx context.Context) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	if v, ok := ctx.Value(execParamsKey{}).(execParams); ok {
		return v.value, true
	}
	return nil, false
}

// execParams boxes the value so a nil context is distinguishable from none.
type execParams struct {
	value any
}
