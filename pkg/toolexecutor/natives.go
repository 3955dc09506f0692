package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"

	"github.com/harun/toolserver/pkg/bridge"
)

// DefaultToolName is the tool answering requests whose tool or arguments cannot be resolved.
const DefaultToolName = "respond"

// NativeTools returns the built-in tools registered at start.
func NativeTools() []*NativeTool {
	return []*NativeTool{
		NewNativeTool("add", []Param{{Name: "a", Type: "number"}, {Name: "b", Type: "number"}}, addNumbers),
		NewNativeTool(DefaultToolName, []Param{{Name: "text"}, {Name: "context"}}, respond),
	}
}

// RegisterNativeTools registers every built-in tool.
func RegisterNativeTools(r *Registry) error {
	for _, tool := range NativeTools() {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("failed to register native tool %s: %w", tool.Name(), err)
		}
	}
	return nil
}

// addNumbers sums two numbers, keeping integer results integral.
func addNumbers(_ context.Context, args []any) (any, error) {
	if isIntegral(args[0]) && isIntegral(args[1]) {
		a, err := cast.ToInt64E(args[0])
		if err != nil {
			return nil, err
		}
		b, err := cast.ToInt64E(args[1])
		if err != nil {
			return nil, err
		}
		return a + b, nil
	}

	a, err := cast.ToFloat64E(args[0])
	if err != nil {
		return nil, fmt.Errorf("argument a: %w", err)
	}
	b, err := cast.ToFloat64E(args[1])
	if err != nil {
		return nil, fmt.Errorf("argument b: %w", err)
	}
	return a + b, nil
}

// respond echoes its text argument.
func respond(_ context.Context, args []any) (any, error) {
	return bridge.Convert(args[0]), nil
}

func isIntegral(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		return true
	case json.Number:
		_, err := x.Int64()
		return err == nil
	default:
		return false
	}
}
