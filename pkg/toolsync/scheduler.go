package toolsync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs reconciliation cycles on a schedule.
type Scheduler struct {
	sync    *Synchronizer
	cron    *cron.Cron
	entryID cron.EntryID
	spec    string
	ctx     context.Context
	cancel  context.CancelFunc
}

// ScheduleSpec returns the cron spec for a schedule: expr when set, otherwise
// a fixed interval.
func ScheduleSpec(expr string, interval time.Duration) (string, error) {
	if expr != "" {
		return expr, nil
	}
	if interval <= 0 {
		return "", fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	return "@every " + interval.String(), nil
}

// NewScheduler creates a scheduler for spec, a standard five-field cron
// expression or a descriptor such as "@every 1h".
func NewScheduler(s *Synchronizer, spec string) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	sched := &Scheduler{sync: s, cron: c, spec: spec, ctx: ctx, cancel: cancel}

	id, err := c.AddFunc(spec, sched.runCycle)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	sched.entryID = id

	return sched, nil
}

func (s *Scheduler) runCycle() {
	if _, err := s.sync.Reconcile(s.ctx); err != nil {
		log.Warn().Err(err).Msg("Scheduled sync failed")
	}
}

// Start begins running cycles in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("schedule", s.spec).Msg("Sync scheduler started")
}

// Next returns the time of the next scheduled cycle
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop stops scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("Sync scheduler stopped")
}
