// Package scheduler runs chartd's periodic maintenance on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner destroys charts last rendered before a cutoff.
// gateway.FramePump implements it.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) []string
}

// Scheduler manages all cron tasks. Specs include a seconds field.
type Scheduler struct {
	Cron   *cron.Cron
	Pruner Pruner
	Ctx    context.Context

	retention time.Duration
	now       func() time.Time

	// OnPrune is called with the number of charts each retention run removed.
	OnPrune func(n int)
}

// New creates a scheduler whose jobs run with ctx.
func New(ctx context.Context, p Pruner) *Scheduler {
	return &Scheduler{
		Cron:   cron.New(cron.WithSeconds()),
		Pruner: p,
		Ctx:    ctx,
		now:    time.Now,
	}
}

// RegisterRetention destroys charts idle for longer than maxAge on every
// tick of spec, e.g. "0 0 * * * *" for hourly.
func (s *Scheduler) RegisterRetention(spec string, maxAge time.Duration) error {
	if maxAge <= 0 {
		return fmt.Errorf("register retention: max age must be positive, got %s", maxAge)
	}
	s.retention = maxAge
	if _, err := s.Cron.AddFunc(spec, func() { s.RunRetentionNow() }); err != nil {
		return fmt.Errorf("register retention %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[scheduler] started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// RunRetentionNow executes the retention task immediately and returns
// the number of charts removed.
func (s *Scheduler) RunRetentionNow() int {
	if s.retention <= 0 {
		return 0
	}
	pruned := s.Pruner.Prune(s.Ctx, s.now().Add(-s.retention))
	if len(pruned) > 0 {
		log.Printf("[scheduler] retention removed %d idle charts: %v", len(pruned), pruned)
	}
	if s.OnPrune != nil {
		s.OnPrune(len(pruned))
	}
	return len(pruned)
}
