package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/toolserver/internal/observability"
)

// Kind tags the two tool variants.
type Kind string

const (
	KindNative Kind = "native"
	KindScript Kind = "script"
)

// Param describes one declared argument of a tool.
// Type is a JSON Schema type name, or empty when any value is accepted.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Tool is the execution contract shared by native and script-backed tools.
// The set of implementations is closed: NativeTool and ScriptTool.
type Tool interface {
	Name() string
	Kind() Kind
	Parameters() []Param
	ArgumentNames() []string
	// Execute runs the tool with arguments ordered as ArgumentNames.
	Execute(ctx context.Context, args []any) (any, error)

	isTool()
}

// NativeFunc implements a native tool. args has exactly one entry per declared parameter.
type NativeFunc func(ctx context.Context, args []any) (any, error)

// Callable is a function bound in the script runtime. Its first argument is
// always the execution context.
type Callable interface {
	Call(ctx context.Context, args []any) (any, error)
}

type baseTool struct {
	name   string
	params []Param
}

func (b baseTool) Name() string { return b.name }

func (b baseTool) Parameters() []Param {
	out := make([]Param, len(b.params))
	copy(out, b.params)
	return out
}

func (b baseTool) ArgumentNames() []string {
	names := make([]string, len(b.params))
	for i, p := range b.params {
		names[i] = p.Name
	}
	return names
}

func (b baseTool) checkArity(args []any) error {
	if len(args) != len(b.params) {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", ErrExecutionFailure, b.name, len(b.params), len(args))
	}
	return nil
}

// NativeTool is a tool implemented in Go.
type NativeTool struct {
	baseTool
	fn NativeFunc
}

// NewNativeTool creates a native tool.
func NewNativeTool(name string, params []Param, fn NativeFunc) *NativeTool {
	return &NativeTool{baseTool: baseTool{name: name, params: params}, fn: fn}
}

func (t *NativeTool) Kind() Kind { return KindNative }

func (t *NativeTool) isTool() {}

// Execute calls the native function. Panics are reported as execution failures.
func (t *NativeTool) Execute(ctx context.Context, args []any) (result any, err error) {
	if err := t.checkArity(args); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: %s panicked: %v", ErrExecutionFailure, t.name, r)
		}
		observability.RecordToolExecution(t.name, time.Since(start), err == nil)
	}()

	result, err = t.fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExecutionFailure, t.name, err)
	}
	return result, nil
}

// ScriptTool is a tool backed by a callable in the script runtime.
type ScriptTool struct {
	baseTool
	callable Callable
}

// NewScriptTool creates a script-backed tool. params excludes the callable's
// leading execution-context parameter.
func NewScriptTool(name string, params []Param, callable Callable) *ScriptTool {
	return &ScriptTool{baseTool: baseTool{name: name, params: params}, callable: callable}
}

func (t *ScriptTool) Kind() Kind { return KindScript }

func (t *ScriptTool) isTool() {}

// Execute prepends the execution context as JSON text and invokes the
// callable.
func (t *ScriptTool) Execute(ctx context.Context, args []any) (any, error) {
	if err := t.checkArity(args); err != nil {
		return nil, err
	}

	execParams, _ := ExecutionParams(ctx)
	encoded, err := encodeExecutionParams(execParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: encode execution context: %v", ErrExecutionFailure, t.name, err)
	}

	callArgs := make([]any, 0, len(args)+1)
	callArgs = append(callArgs, encoded)
	callArgs = append(callArgs, args...)

	start := time.Now()
	result, err := t.callable.Call(ctx, callArgs)
	observability.RecordToolExecution(t.name, time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExecutionFailure, t.name, err)
	}
	return result, nil
}

func encodeExecutionParams(v any) (string, error) {
	if s, ok := v.(EncodedParams); ok {
		return string(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
