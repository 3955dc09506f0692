package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolserver/pkg/embedding"
	"github.com/harun/toolserver/pkg/scriptruntime"
	"github.com/harun/toolserver/pkg/toolexecutor"
)

const contextEcho = `package main

func whoami(executionParams string, greeting string) string {
	return greeting + " " + executionParams
}
`

const quoted = `package main

func quoted(executionParams string) string {
	return "{'x': 1}"
}
`

func newDispatcher(t *testing.T) (*Dispatcher, *toolexecutor.Registry) {
	t.Helper()

	reg := toolexecutor.NewRegistry()
	require.NoError(t, toolexecutor.RegisterNativeTools(reg))
	rt := scriptruntime.New()
	emb := embedding.New(reg, rt)

	_, err := emb.LoadBundled(context.Background(), embedding.BundledScripts())
	require.NoError(t, err)
	require.NoError(t, emb.Embed(context.Background(), "whoami", contextEcho, time.Now()))
	require.NoError(t, emb.Embed(context.Background(), "quoted", quoted, time.Now()))

	return New(reg, rt, 5*time.Second), reg
}

func TestExtractToolName(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"multiply(a, b)", "multiply"},
		{"  multiply(a,b)", "multiply"},
		{"add(multiply(1, 2), 3)", "add"},
		{"noparens", "noparens"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractToolName(tt.script), tt.script)
	}
}

func TestNormalizeScriptResult(t *testing.T) {
	assert.Equal(t, map[string]any{"x": int64(1)}, normalizeScriptResult("{'x': 1}"))
	assert.Equal(t, map[string]any{"x": 1.5}, normalizeScriptResult("{'x': 1.5}"))
	assert.Equal(t, "not json", normalizeScriptResult("not json"))
	assert.Equal(t, "it's", normalizeScriptResult("it's"))
	assert.Equal(t, float64(6), normalizeScriptResult(6.0))
	assert.Equal(t, []any{int64(1), "a"}, normalizeScriptResult([]any{1, "a"}))
	assert.Nil(t, normalizeScriptResult(nil))

	t.Run("large integers stay exact", func(t *testing.T) {
		assert.Equal(t, int64(9007199254740993), normalizeScriptResult(int64(9007199254740993)))
		assert.Equal(t, map[string]any{"id": int64(9007199254740993)}, normalizeScriptResult("{'id': 9007199254740993}"))
		assert.Equal(t, []any{int64(9007199254740993)}, normalizeScriptResult("[9007199254740993]"))

		out, err := json.Marshal(normalizeScriptResult("{'id': 123456789012345678901234567890}"))
		require.NoError(t, err)
		assert.Equal(t, `{"id":123456789012345678901234567890}`, string(out))
	})
}

func TestDispatch_NamedNativeTool(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), &Request{
		ToolName:   "add",
		ToolParams: map[string]any{"a": 2, "b": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out)
}

func TestDispatch_NamedScriptTool(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), &Request{
		ToolName:   "multiply",
		ToolParams: map[string]any{"b": 4, "a": 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(10), out)
}

func TestDispatch_ScriptReceivesJSONContext(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), &Request{
		ToolName:   "whoami",
		ToolParams: map[string]any{"greeting": "hi"},
		Context:    map[string]any{"user": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, `hi {"user":"u1"}`, out)
}

func TestDispatch_ScriptResultIsParsed(t *testing.T) {
	d, _ := newDispatcher(t)

	out, err := d.Dispatch(context.Background(), &Request{ToolName: "quoted"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(1)}, out)
}

func TestDispatch_FallsBackToDefaultTool(t *testing.T) {
	d, _ := newDispatcher(t)

	t.Run("unknown tool", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{
			ToolName:   "nonexistent",
			ToolParams: map[string]any{"a": 1},
		})
		require.NoError(t, err)
		assert.Equal(t, "map[a:1]", out)
	})

	t.Run("missing argument", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{
			ToolName:   "add",
			ToolParams: map[string]any{"a": 1},
		})
		require.NoError(t, err)
		assert.Equal(t, "map[a:1]", out)
	})

	t.Run("no tool name", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{})
		require.NoError(t, err)
		assert.Equal(t, "map[]", out)
	})
}

func TestDispatch_ExecutionFailure(t *testing.T) {
	d, _ := newDispatcher(t)

	_, err := d.Dispatch(context.Background(), &Request{
		ToolName:   "add",
		ToolParams: map[string]any{"a": 1, "b": "two"},
	})
	assert.ErrorIs(t, err, toolexecutor.ErrExecutionFailure)

	_, err = d.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, toolexecutor.ErrExecutionFailure)
}

func TestDispatch_AdHocScript(t *testing.T) {
	d, _ := newDispatcher(t)

	t.Run("script tool", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{Script: "  multiply(2, 3)"})
		require.NoError(t, err)
		assert.Equal(t, float64(6), out)
	})

	t.Run("native tool", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{Script: "add(2, 3)", Language: "go"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), out)
	})

	t.Run("context threaded to script tools", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{
			Script:  `whoami("hey")`,
			Context: []any{"c"},
		})
		require.NoError(t, err)
		assert.Equal(t, `hey ["c"]`, out)
	})

	t.Run("string context reaches nested script tools as JSON", func(t *testing.T) {
		out, err := d.Dispatch(context.Background(), &Request{
			Script:  `respond(whoami("hey"), "")`,
			Context: "abc",
		})
		require.NoError(t, err)
		assert.Equal(t, `hey "abc"`, out)

		named, err := d.Dispatch(context.Background(), &Request{
			ToolName:   "whoami",
			ToolParams: map[string]any{"greeting": "hey"},
			Context:    "abc",
		})
		require.NoError(t, err)
		assert.Equal(t, out, named)
	})

	t.Run("unsupported language", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), &Request{Script: "multiply(2, 3)", Language: "python"})
		assert.ErrorIs(t, err, ErrUnsupportedLanguage)
		assert.ErrorIs(t, err, toolexecutor.ErrExecutionFailure)
	})

	t.Run("evaluation error", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), &Request{Script: "multiply(2,"})
		assert.ErrorIs(t, err, toolexecutor.ErrExecutionFailure)
	})

	t.Run("failing tool call", func(t *testing.T) {
		_, err := d.Dispatch(context.Background(), &Request{Script: `add("x", 1)`})
		assert.ErrorIs(t, err, toolexecutor.ErrExecutionFailure)
	})
}
