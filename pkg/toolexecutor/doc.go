// Package toolexecutor registers and executes named tools.
//
// A tool is either native (implemented in Go and registered at start) or
// script-backed (a callable embedded into the script runtime). Both variants
// share the Tool contract and live in one Registry.
//
// Invariants:
// - Tool names are unique.
// - Arguments are marshalled in the tool's declared argument order.
// - Register and Remove are atomic; lookups never observe a partially built tool.
// - Native tools are never removed or shadowed by script tools.
//
// The execution context of a call travels in the context.Context given to
// Execute (see WithExecutionParams), never through shared registry state.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry()
//	_ = reg.Register(toolexecutor.NewNativeTool("echo",
//		[]toolexecutor.Param{{Name: "text", Type: "string"}},
//		func(ctx context.Context, args []any) (any, error) { return args[0], nil }))
//	out, err := reg.Execute(ctx, "echo", map[string]any{"text": "hi"})
package toolexecutor
