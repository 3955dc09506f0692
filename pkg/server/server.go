// Package server exposes the tool dispatcher and the embedding pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolserver/internal/observability"
	"github.com/harun/toolserver/internal/tracing"
	"github.com/harun/toolserver/pkg/auth"
	"github.com/harun/toolserver/pkg/dispatcher"
	"github.com/harun/toolserver/pkg/objectstore"
	"github.com/harun/toolserver/pkg/toolexecutor"
	"github.com/harun/toolserver/pkg/toolsync"
)

const maxBodyBytes = 4 << 20

// Options configures the HTTP server.
type Options struct {
	Host               string
	Port               int
	RateLimitPerMinute int
	AuthRequired       bool
	ShutdownTimeout    time.Duration
}

// Server is the tool server HTTP front end.
type Server struct {
	options      Options
	server       *http.Server
	dispatcher   *dispatcher.Dispatcher
	registry     *toolexecutor.Registry
	synchronizer *toolsync.Synchronizer
	validator    *auth.Validator
	rateLimiter  *RateLimiter
	logger       zerolog.Logger
	startTime    time.Time

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// New creates a server. synchronizer may be nil when no object store is
// configured; validator may be nil when tokens are not checked.
func New(options Options, d *dispatcher.Dispatcher, registry *toolexecutor.Registry, synchronizer *toolsync.Synchronizer, validator *auth.Validator, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	if d == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if options.AuthRequired && validator == nil {
		return nil, fmt.Errorf("auth is required but no secret is configured")
	}

	return &Server{
		options:      options,
		dispatcher:   d,
		registry:     registry,
		synchronizer: synchronizer,
		validator:    validator,
		rateLimiter:  NewRateLimiter(options.RateLimitPerMinute, time.Minute),
		logger:       logger,
		startTime:    time.Now(),
	}, nil
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tool-server", s.handleToolRequest)
	mux.HandleFunc("/embed-python-script", s.handleEmbed)
	mux.HandleFunc("/embed-script", s.handleEmbed)
	mux.HandleFunc("/tools", s.handleListTools)
	mux.HandleFunc("/sync", s.handleSync)
	mux.Handle("/metrics", observability.MetricsHandler())

	var h http.Handler = mux
	h = auth.Middleware(s.validator, s.options.AuthRequired)(h)
	h = s.rateLimit(h)
	h = s.track(h)
	return h
}

// Start listens and serves until Stop is called
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.options.Host, fmt.Sprintf("%d", s.options.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.shutdownMu.Lock()
	if s.isShuttingDown {
		s.shutdownMu.Unlock()
		return nil
	}
	s.server = srv
	s.shutdownMu.Unlock()

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting tool server")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start tool server: %w", err)
	}

	return nil
}

// Stop waits for in-flight requests, then shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down tool server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, forcing close")
	}

	s.rateLimiter.Stop()

	s.shutdownMu.RLock()
	srv := s.server
	s.shutdownMu.RUnlock()
	if srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tool server: %w", err)
	}

	s.logger.Info().Msg("Tool server stopped")
	return nil
}

// track assigns request IDs, refuses work while shutting down, and logs
// every request.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		start := time.Now()
		ctx := tracing.NewRequestContext(r.Context())
		w.Header().Set("X-Request-ID", tracing.GetRequestID(ctx))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		event := s.logger.Info()
		if rec.status >= http.StatusBadRequest {
			event = s.logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", clientIP(r)).
			Str("request_id", tracing.GetRequestID(ctx)).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ok, retryAfter := s.rateLimiter.Allow(ip); !ok {
			s.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retryAfter", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"toolCount": s.registry.Count(),
		"timestamp": time.Now().UnixMilli(),
	})
}

// handleToolRequest answers with the normalized result, or 400 and no body.
func (s *Server) handleToolRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dispatcher.Request
	if err := decodeBody(r, &req); err != nil {
		s.logger.Debug().Err(err).Msg("Malformed tool request")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type embedRequest struct {
	Records []objectstore.Ref `json:"records"`
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.synchronizer == nil {
		s.logger.Warn().Msg("Embed requested without an object store")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var req embedRequest
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.synchronizer.EmbedObjects(r.Context(), req.Records); err != nil {
		s.logger.Error().Err(err).Int("records", len(req.Records)).Msg("Embed request failed")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type toolInfo struct {
	Name       string               `json:"name"`
	Kind       toolexecutor.Kind    `json:"kind"`
	Parameters []toolexecutor.Param `json:"parameters"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tools := s.registry.List()
	out := make([]toolInfo, 0, len(tools))
	for _, tool := range tools {
		out = append(out, toolInfo{Name: tool.Name(), Kind: tool.Kind(), Parameters: tool.Parameters()})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.synchronizer == nil {
		http.Error(w, "No object store configured", http.StatusServiceUnavailable)
		return
	}

	report, err := s.synchronizer.Reconcile(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, objectstore.ErrListingIncomplete) {
			status = http.StatusBadGateway
		}
		http.Error(w, "Sync failed", status)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// decodeBody decodes a JSON body keeping numbers as json.Number, so integers
// are not widened to float64.
func decodeBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP extracts the caller address, preferring proxy headers
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
