package toolexecutor

import (
	"context"
	"fmt"
	"go/token"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/toolserver/internal/observability"
)

// Registry is the concurrency-safe set of tools, keyed by name.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	log.Debug().Msg("Tool registry initialized")

	return r
}

// Register inserts or replaces a tool. The schema is built before the tool is
// published, so a lookup sees either the previous tool or the complete new one.
func (r *Registry) Register(tool Tool) error {
	if err := validateTool(tool); err != nil {
		return err
	}

	schema, err := generateJSONSchema(tool.Parameters())
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[tool.Name()]; ok && existing.Kind() == KindNative && tool.Kind() != KindNative {
		return fmt.Errorf("%w: %s", ErrNativeTool, tool.Name())
	}

	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = schema
	r.updateGaugesLocked()

	log.Info().
		Str("tool", tool.Name()).
		Str("kind", string(tool.Kind())).
		Strs("arguments", tool.ArgumentNames()).
		Msg("Tool registered")

	return nil
}

// Remove deletes a script tool. Removing an absent name is a no-op; native
// tools are kept.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.tools[name]
	if !ok {
		return false
	}
	if tool.Kind() == KindNative {
		log.Warn().Str("tool", name).Msg("Refusing to remove native tool")
		return false
	}

	delete(r.tools, name)
	delete(r.schemas, name)
	r.updateGaugesLocked()

	log.Info().Str("tool", name).Msg("Tool removed")

	return true
}

// Get returns the tool registered under name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool is registered under name
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all tools sorted by name
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})

	return tools
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// IsScriptTool reports whether name resolves to a script tool. Names that are
// not registered count as script tools.
func (r *Registry) IsScriptTool(name string) bool {
	tool, ok := r.Get(name)
	if !ok {
		return true
	}
	return tool.Kind() == KindScript
}

// Resolve looks up a tool and marshals params into its declared argument
// order. It returns ErrUnknownTool or ErrMissingArgument when the call cannot
// be resolved, and ErrExecutionFailure when params fail schema validation.
func (r *Registry) Resolve(name string, params map[string]any) (Tool, []any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	argNames := tool.ArgumentNames()
	args := make([]any, 0, len(argNames))
	for _, argName := range argNames {
		value, present := params[argName]
		if !present {
			return nil, nil, fmt.Errorf("%w: %s requires %q", ErrMissingArgument, name, argName)
		}
		args = append(args, value)
	}

	if err := validateParameters(schema, params); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrExecutionFailure, name, err)
	}

	return tool, args, nil
}

// Execute resolves name against params and runs the tool.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (any, error) {
	tool, args, err := r.Resolve(name, params)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("tool", name).Msg("Executing tool")

	return tool.Execute(ctx, args)
}

// ExecutePositional runs a tool with already ordered arguments.
func (r *Registry) ExecutePositional(ctx context.Context, name string, args []any) (any, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, args)
}

func (r *Registry) updateGaugesLocked() {
	counts := map[Kind]int{KindNative: 0, KindScript: 0}
	for _, tool := range r.tools {
		counts[tool.Kind()]++
	}
	for kind, n := range counts {
		observability.SetRegisteredTools(string(kind), n)
	}
}

// validateTool validates a tool before registration
func validateTool(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("%w: nil tool", ErrInvalidTool)
	}
	if tool.Name() == "" {
		return fmt.Errorf("%w: tool name cannot be empty", ErrInvalidTool)
	}
	if !token.IsIdentifier(tool.Name()) {
		return fmt.Errorf("%w: tool name %q is not an identifier", ErrInvalidTool, tool.Name())
	}

	seen := make(map[string]bool)
	for _, param := range tool.Parameters() {
		if param.Name == "" {
			return fmt.Errorf("%w: parameter name cannot be empty for %s", ErrInvalidTool, tool.Name())
		}
		if seen[param.Name] {
			return fmt.Errorf("%w: duplicate parameter %s for %s", ErrInvalidTool, param.Name, tool.Name())
		}
		seen[param.Name] = true
		if param.Type != "" && !validTypes[param.Type] {
			return fmt.Errorf("%w: invalid parameter type %s for %s", ErrInvalidTool, param.Type, param.Name)
		}
	}

	return nil
}
