package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolserver/pkg/auth"
	"github.com/harun/toolserver/pkg/dispatcher"
	"github.com/harun/toolserver/pkg/embedding"
	"github.com/harun/toolserver/pkg/objectstore"
	"github.com/harun/toolserver/pkg/scriptruntime"
	"github.com/harun/toolserver/pkg/toolexecutor"
	"github.com/harun/toolserver/pkg/toolsync"
)

const cubeSource = `package main

func cube(executionParams string, x float64) float64 {
	return x * x * x
}
`

type fixture struct {
	server   *Server
	handler  http.Handler
	storeDir string
	registry *toolexecutor.Registry
}

func newFixture(t *testing.T, options Options, validator *auth.Validator) *fixture {
	t.Helper()

	reg := toolexecutor.NewRegistry()
	require.NoError(t, toolexecutor.RegisterNativeTools(reg))
	rt := scriptruntime.New()
	emb := embedding.New(reg, rt)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tools"), 0o755))
	store, err := objectstore.NewLocalStore(dir, 0)
	require.NoError(t, err)
	syncer := toolsync.New(store, emb, toolsync.Config{Prefix: "tools/"})

	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	srv, err := New(options, dispatcher.New(reg, rt, time.Second), reg, syncer, validator, logger)
	require.NoError(t, err)
	t.Cleanup(srv.rateLimiter.Stop)

	return &fixture{server: srv, handler: srv.Handler(), storeDir: dir, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	assert.Equal(t, 8080, f.server.options.Port)
	assert.Equal(t, "0.0.0.0", f.server.options.Host)
}

func TestNew_RequiresValidatorWhenAuthRequired(t *testing.T) {
	reg := toolexecutor.NewRegistry()
	d := dispatcher.New(reg, scriptruntime.New(), 0)

	_, err := New(Options{AuthRequired: true}, d, reg, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{}, nil, reg, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["toolCount"])

	rec = f.do(t, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestToolServer(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"named native", `{"toolName":"add","toolParams":{"a":1,"b":2}}`, http.StatusOK, "3"},
		{"float arguments", `{"toolName":"add","toolParams":{"a":1.5,"b":2}}`, http.StatusOK, "3.5"},
		{"unknown tool falls back", `{"toolName":"nope","toolParams":{"a":1}}`, http.StatusOK, `"map[a:1]"`},
		{"ad hoc script", `{"script":"add(40, 2)","language":"go"}`, http.StatusOK, "42"},
		{"execution failure", `{"toolName":"add","toolParams":{"a":1,"b":"x"}}`, http.StatusBadRequest, ""},
		{"unsupported language", `{"script":"add(1, 2)","language":"python"}`, http.StatusBadRequest, ""},
		{"malformed", `{"toolName":`, http.StatusBadRequest, ""},
		{"empty", ``, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/tool-server", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
		})
	}
}

func TestEmbedScript(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.storeDir, "tools", "cube.go"), []byte(cubeSource), 0o644))

	for _, path := range []string{"/embed-python-script", "/embed-script"} {
		rec := f.do(t, http.MethodPost, path, `{"records":[{"bucket":"local","key":"tools/cube.go"}]}`)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String())
	}

	rec := f.do(t, http.MethodPost, "/tool-server", `{"toolName":"cube","toolParams":{"x":3}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "27", strings.TrimSpace(rec.Body.String()))

	rec = f.do(t, http.MethodPost, "/embed-script", `{"records":[{"key":"tools/missing.go"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListToolsAndSync(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(f.storeDir, "tools", "cube.go"), []byte(cubeSource), 0o644))

	rec := f.do(t, http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report toolsync.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, []string{"cube"}, report.Added)

	rec = f.do(t, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []toolInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{"add", "cube", "respond"}, names)
	assert.Equal(t, toolexecutor.KindScript, tools[1].Kind)
	assert.Equal(t, []toolexecutor.Param{{Name: "x", Type: "number"}}, tools[1].Parameters)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RateLimitPerMinute: 1}, nil)

	rec := f.do(t, http.MethodGet, "/health", "", "X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health", "", "X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAuthRequired(t *testing.T) {
	validator, err := auth.NewValidator("00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	f := newFixture(t, Options{AuthRequired: true}, validator)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := validator.Sign(auth.Claims{"userId": "u1"})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/health", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.do(t, http.MethodPost, "/tool-server", `{"toolName":"add","toolParams":{"a":1,"b":2}}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dispatch_requests_total")
}

func TestStop_RefusesNewRequests(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	require.NoError(t, f.server.Stop(context.Background()))

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:4000"
	assert.Equal(t, "192.168.1.1", clientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", clientIP(req))
}
