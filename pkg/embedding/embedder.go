package embedding

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/toolserver/internal/observability"
	"github.com/harun/toolserver/internal/tracing"
	"github.com/harun/toolserver/pkg/scriptruntime"
	"github.com/harun/toolserver/pkg/toolexecutor"
)

// ScriptExtension is the file extension of tool scripts.
const ScriptExtension = ".go"

// Embedder turns script source into registered script tools and tracks the
// last-modified timestamp of every script it embedded from the object store.
type Embedder struct {
	registry *toolexecutor.Registry
	runtime  *scriptruntime.Runtime

	// tracked holds an entry exactly while a synced script tool is embedded
	tracked map[string]time.Time
	mu      sync.Mutex
}

// New creates an embedder publishing into registry and runtime
func New(registry *toolexecutor.Registry, runtime *scriptruntime.Runtime) *Embedder {
	return &Embedder{
		registry: registry,
		runtime:  runtime,
		tracked:  make(map[string]time.Time),
	}
}

// Embed compiles source as tool name and registers it. A tracked name is only
// replaced when modified is strictly after the recorded timestamp; otherwise
// Embed returns ErrNotNewer and changes nothing. Failures are *EmbedError and
// leave the previous tool, if any, in place.
func (e *Embedder) Embed(ctx context.Context, name, source string, modified time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "embedding.Embed", attribute.String("tool", name))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if last, ok := e.tracked[name]; ok && !modified.After(last) {
		observability.RecordEmbed("skipped")
		log.Debug().
			Str("tool", name).
			Time("modified", modified).
			Time("recorded", last).
			Msg("Script not newer, skipping embed")
		return ErrNotNewer
	}

	if err := e.embedLocked(ctx, name, source); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	e.tracked[name] = modified
	return nil
}

// EmbedUntracked compiles source as tool name without recording a timestamp.
// The tool replaces any current script tool of that name unconditionally and
// is not evicted by reconciliation unless the name is already tracked.
func (e *Embedder) EmbedUntracked(ctx context.Context, name, source string) error {
	ctx, span := tracing.StartSpan(ctx, "embedding.EmbedUntracked", attribute.String("tool", name))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.embedLocked(ctx, name, source); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// LoadBundled embeds every script in fsys. Bundled tools are not tracked, so
// the synchronizer never evicts them.
func (e *Embedder) LoadBundled(ctx context.Context, fsys fs.FS) (int, error) {
	paths, err := fs.Glob(fsys, "*"+ScriptExtension)
	if err != nil {
		return 0, fmt.Errorf("failed to list bundled scripts: %w", err)
	}
	sort.Strings(paths)

	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		loaded int
		errs   []error
	)
	for _, p := range paths {
		name := ToolName(p)
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			errs = append(errs, &EmbedError{Name: name, Stage: StageFetch, Err: err})
			continue
		}
		if err := e.embedLocked(ctx, name, string(data)); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}

	log.Info().Int("loaded", loaded).Int("failed", len(errs)).Msg("Bundled scripts loaded")

	return loaded, errors.Join(errs...)
}

func (e *Embedder) embedLocked(ctx context.Context, name, source string) error {
	fail := func(stage string, err error) error {
		embedErr := &EmbedError{Name: name, Stage: stage, Err: err}
		observability.RecordEmbed("failed")
		observability.RecordEmbedAudit(ctx, name, "failure", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
		log.Error().Err(err).Str("tool", name).Str("stage", stage).Msg("Failed to embed script")
		return embedErr
	}

	if !token.IsIdentifier(name) {
		return fail(StageName, fmt.Errorf("%q is not a valid tool name", name))
	}
	if existing, ok := e.registry.Get(name); ok && existing.Kind() == toolexecutor.KindNative {
		return fail(StageRegister, ErrReservedName)
	}

	unit, err := scriptruntime.Compile(name, source)
	if err != nil {
		return fail(StageCompile, err)
	}

	// the leading parameter receives the execution context
	declared := unit.Params()
	params := make([]toolexecutor.Param, 0, len(declared)-1)
	for _, p := range declared[1:] {
		params = append(params, toolexecutor.Param{Name: p.Name, Type: p.Type})
	}

	if err := e.registry.Register(toolexecutor.NewScriptTool(name, params, unit)); err != nil {
		return fail(StageRegister, err)
	}
	e.runtime.Bind(unit)

	observability.RecordEmbed("embedded")
	observability.RecordEmbedAudit(ctx, name, "success", nil)

	return nil
}

// Evict removes a script tool, its tracked timestamp and its runtime binding.
func (e *Embedder) Evict(ctx context.Context, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := e.registry.Remove(name)
	_, wasTracked := e.tracked[name]
	delete(e.tracked, name)
	unbound := e.runtime.Unbind(name)

	if !removed && !wasTracked && !unbound {
		return false
	}

	observability.RecordEvict()
	observability.RecordEvictAudit(ctx, name)
	log.Info().Str("tool", name).Msg("Script tool evicted")

	return true
}

// LastModified returns the recorded timestamp of a tracked script
func (e *Embedder) LastModified(name string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tracked[name]
	return t, ok
}

// Tracked returns a copy of the tracked name → timestamp state
func (e *Embedder) Tracked() map[string]time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]time.Time, len(e.tracked))
	for name, t := range e.tracked {
		out[name] = t
	}
	return out
}

// Registry returns the registry tools are published into
func (e *Embedder) Registry() *toolexecutor.Registry {
	return e.registry
}

// ToolName derives a tool name from an object key: the base name without its
// extension.
func ToolName(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
