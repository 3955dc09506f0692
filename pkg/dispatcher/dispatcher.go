// Package dispatcher routes tool requests to the ad hoc script path or to a
// named tool, falling back to the default tool when a named call cannot be
// resolved.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/toolserver/internal/observability"
	"github.com/harun/toolserver/internal/tracing"
	"github.com/harun/toolserver/pkg/scriptruntime"
	"github.com/harun/toolserver/pkg/toolexecutor"
)

// ScriptLanguage is the only language tag the ad hoc path accepts. An empty
// tag means the same.
const ScriptLanguage = "go"

// ErrUnsupportedLanguage is returned for ad hoc scripts in another language
var ErrUnsupportedLanguage = errors.New("unsupported script language")

// Execution paths, as reported in logs and metrics.
const (
	PathScript   = "script"
	PathNamed    = "named"
	PathFallback = "fallback"
)

// Dispatcher executes requests against a registry and a script runtime.
type Dispatcher struct {
	registry *toolexecutor.Registry
	runtime  *scriptruntime.Runtime
	timeout  time.Duration
}

// New creates a dispatcher. A zero timeout leaves requests unbounded.
func New(registry *toolexecutor.Registry, runtime *scriptruntime.Runtime, timeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, runtime: runtime, timeout: timeout}
}

// Dispatch executes req and returns its normalized result. Errors wrap
// toolexecutor.ErrExecutionFailure; an unresolved named call is not an error
// and answers with the default tool.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (any, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "dispatcher.Dispatch")
	defer span.End()

	start := time.Now()
	result, name, path, err := d.dispatch(ctx, req)

	span.SetAttributes(attribute.String("tool", name), attribute.String("dispatch.path", path))
	observability.RecordRequest(path, time.Since(start), err == nil)

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		observability.RecordDispatchAudit(ctx, name, path, "failure")
		logger.Error().Err(err).Str("tool", name).Str("path", path).Msg("Request failed")
		return nil, err
	}

	observability.RecordDispatchAudit(ctx, name, path, "success")
	logger.Debug().
		Str("tool", name).
		Str("path", path).
		Dur("duration", time.Since(start)).
		Msg("Request completed")

	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (result any, name, path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", toolexecutor.ErrExecutionFailure, r)
		}
	}()

	if req == nil {
		return nil, "", PathNamed, fmt.Errorf("%w: empty request", toolexecutor.ErrExecutionFailure)
	}

	if req.IsAdHoc() {
		name = ExtractToolName(req.Script)
		result, err = d.dispatchScript(ctx, name, req)
		return result, name, PathScript, err
	}

	name = req.ToolName
	result, path, err = d.dispatchNamed(ctx, req)
	return result, name, path, err
}

func (d *Dispatcher) dispatchScript(ctx context.Context, name string, req *Request) (any, error) {
	if lang := strings.ToLower(strings.TrimSpace(req.Language)); lang != "" && lang != ScriptLanguage {
		return nil, fmt.Errorf("%w: %w %q", toolexecutor.ErrExecutionFailure, ErrUnsupportedLanguage, req.Language)
	}

	isScript := d.registry.IsScriptTool(name)
	ctx, err := d.withExecutionParams(ctx, req.Context, isScript)
	if err != nil {
		return nil, err
	}

	tools := d.registry.List()
	signatures := make([]scriptruntime.Signature, 0, len(tools))
	for _, tool := range tools {
		signatures = append(signatures, scriptruntime.Signature{Name: tool.Name(), Arity: len(tool.ArgumentNames())})
	}

	out, err := d.runtime.Eval(ctx, req.Script, signatures, d.registry.ExecutePositional)
	if err != nil {
		if errors.Is(err, toolexecutor.ErrExecutionFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", toolexecutor.ErrExecutionFailure, err)
	}
	return normalize(out, isScript), nil
}

func (d *Dispatcher) dispatchNamed(ctx context.Context, req *Request) (any, string, error) {
	isScript := d.registry.IsScriptTool(req.ToolName)

	tool, args, err := d.registry.Resolve(req.ToolName, req.ToolParams)
	switch {
	case errors.Is(err, toolexecutor.ErrUnknownTool), errors.Is(err, toolexecutor.ErrMissingArgument):
		log.Debug().Err(err).Str("tool", req.ToolName).Msg("Falling back to default tool")
		observability.RecordFallback()

		out, err := d.registry.ExecutePositional(ctx, toolexecutor.DefaultToolName, []any{fmt.Sprintf("%v", req.ToolParams), req.Context})
		if err != nil {
			return nil, PathFallback, err
		}
		return normalize(out, isScript), PathFallback, nil
	case err != nil:
		return nil, PathNamed, err
	}

	ctx, err = d.withExecutionParams(ctx, req.Context, isScript)
	if err != nil {
		return nil, PathNamed, err
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, PathNamed, err
	}
	return normalize(out, isScript), PathNamed, nil
}

// withExecutionParams attaches the request context for the tools a request
// invokes: JSON text for script tools, the raw value otherwise.
func (d *Dispatcher) withExecutionParams(ctx context.Context, value any, isScript bool) (context.Context, error) {
	if !isScript {
		return toolexecutor.WithExecutionParams(ctx, value), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: encode context: %v", toolexecutor.ErrExecutionFailure, err)
	}
	return toolexecutor.WithExecutionParams(ctx, toolexecutor.EncodedParams(data)), nil
}
