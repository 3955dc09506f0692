package daemon

import (
	"context"
	"time"

	"github.com/harun/toolserver/pkg/toolexecutor"
)

// EventLoop runs out-of-band sync cycles requested by the store watcher and
// logs periodic status.
type EventLoop struct {
	daemon       *Daemon
	interval     time.Duration
	syncRequests chan string
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: 30 * time.Second,
		// one pending request absorbs any burst
		syncRequests: make(chan string, 1),
	}
}

// RequestSync asks for a reconciliation cycle. Requests made while one is
// already pending are coalesced into it.
func (e *EventLoop) RequestSync(reason string) {
	select {
	case e.syncRequests <- reason:
	default:
	}
}

// Run processes sync requests and maintenance ticks until ctx is done
func (e *EventLoop) Run(ctx context.Context) {
	log := e.daemon.logger.GetZerolog()
	log.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Event loop stopping")
			return

		case reason := <-e.syncRequests:
			report, err := e.daemon.core.Synchronizer.Reconcile(ctx)
			if err != nil {
				log.Warn().Err(err).Str("reason", reason).Msg("Requested sync failed")
				continue
			}
			log.Info().
				Str("reason", reason).
				Strs("added", report.Added).
				Strs("deleted", report.Deleted).
				Msg("Requested sync finished")

		case <-ticker.C:
			e.processTasks()
		}
	}
}

func (e *EventLoop) processTasks() {
	var native, script int
	for _, tool := range e.daemon.core.Registry.List() {
		if tool.Kind() == toolexecutor.KindNative {
			native++
		} else {
			script++
		}
	}

	zl := e.daemon.logger.GetZerolog()
	event := zl.Debug().
		Int("native_tools", native).
		Int("script_tools", script).
		Int("tracked_scripts", len(e.daemon.core.Embedder.Tracked()))
	if e.daemon.scheduler != nil {
		event = event.Time("next_sync", e.daemon.scheduler.Next())
	}
	event.Msg("Status")
}
