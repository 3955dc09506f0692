// Package daemon assembles the tool server process: the core modules, the
// HTTP server, the sync scheduler and the local store watcher.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/toolserver/internal/config"
	"github.com/harun/toolserver/internal/logger"
	"github.com/harun/toolserver/internal/observability"
	"github.com/harun/toolserver/internal/tracing"
	"github.com/harun/toolserver/pkg/objectstore"
	"github.com/harun/toolserver/pkg/server"
	"github.com/harun/toolserver/pkg/toolsync"
)

// Daemon represents the tool server service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	core *Core

	// Services
	server    *server.Server
	scheduler *toolsync.Scheduler
	watcher   *objectstore.Watcher

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager
	serverErr chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Tools     int
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config:    cfg,
		logger:    log,
		ctx:       ctx,
		cancel:    cancel,
		serverErr: make(chan error, 1),
		lifecycle: NewLifecycleManager(cfg.DataDir),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			zl := log.GetZerolog()
			zl.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			d.tracingEnabled = true
		}
	}

	if cfg.Audit.Path != "" {
		if err := os.MkdirAll(cfg.DataDir, 0755); err == nil {
			if err := observability.InitAuditLogger(cfg.Audit.Path); err != nil {
				zl := log.GetZerolog()
				zl.Warn().Err(err).Str("path", cfg.Audit.Path).Msg("Failed to open audit log, using stderr")
			}
		}
	}

	core, err := BuildCore(ctx, cfg)
	if err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	d.core = core
	d.eventLoop = NewEventLoop(d)

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

func (d *Daemon) initializeServices() error {
	var err error

	d.server, err = server.New(server.Options{
		Host:               d.config.Server.Host,
		Port:               d.config.Server.Port,
		RateLimitPerMinute: d.config.Server.RateLimitPerMinute,
		AuthRequired:       d.config.Auth.Required,
		ShutdownTimeout:    d.config.Server.ShutdownTimeout,
	}, d.core.Dispatcher, d.core.Registry, d.core.Synchronizer, d.core.Validator, d.logger.GetZerolog())
	if err != nil {
		return err
	}

	if d.config.Sync.Enabled {
		spec, err := toolsync.ScheduleSpec(d.config.Sync.Schedule, d.config.Sync.Interval)
		if err != nil {
			return err
		}
		d.scheduler, err = toolsync.NewScheduler(d.core.Synchronizer, spec)
		if err != nil {
			return err
		}
	}

	if local, ok := d.core.Store.(*objectstore.LocalStore); ok && d.config.Store.Watch {
		d.watcher, err = objectstore.NewWatcher(objectstore.WatcherConfig{
			Root:      local.Root(),
			Extension: d.config.Store.Extension,
			OnChange: func(path string) error {
				d.eventLoop.RequestSync("store changed")
				return nil
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// abort releases what New acquired before failing
func (d *Daemon) abort() {
	d.cancel()
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Starting tool server daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Sync.RunOnStart {
		if report, err := d.core.Synchronizer.Reconcile(d.ctx); err != nil {
			log.Warn().Err(err).Msg("Initial sync failed, serving bundled tools only")
		} else {
			log.Info().Int("added", len(report.Added)).Int("failed", len(report.Failed)).Msg("Initial sync finished")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Start(); err != nil {
			d.serverErr <- err
		}
	}()

	if d.scheduler != nil {
		d.scheduler.Start()
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start store watcher")
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	log.Info().Int("tools", d.core.Registry.Count()).Msg("Daemon started")
	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Stopping tool server daemon")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.config.Server.ShutdownTimeout+time.Second)
	if err := d.server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop server")
		errs = append(errs, err)
	}
	cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop store watcher")
		}
	}

	if d.scheduler != nil {
		d.scheduler.Stop()
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit logger")
	}

	log.Info().Msg("Daemon stopped")
	return errors.Join(errs...)
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Tools:   d.core.Registry.Count(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}
	return status
}

// Wait blocks until a termination signal arrives or the server fails, then
// stops the daemon.
func (d *Daemon) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var serveErr error
	zl := d.logger.GetZerolog()
	select {
	case sig := <-sigChan:
		zl.Info().Str("signal", sig.String()).Msg("Received signal")
	case serveErr = <-d.serverErr:
		zl.Error().Err(serveErr).Msg("Server failed")
	}

	if err := d.Stop(); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetCore returns the core modules
func (d *Daemon) GetCore() *Core {
	return d.core
}

// GetServer returns the HTTP server
func (d *Daemon) GetServer() *server.Server {
	return d.server
}

// GetLifecycle returns the lifecycle manager
func (d *Daemon) GetLifecycle() *LifecycleManager {
	return d.lifecycle
}
