// Package scheduler provides the in-process stand-in for the external
// trigger: one ticker per backup kind, far enough apart by configuration
// that runs do not routinely overlap.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kebairia/backupd/internal/logger"
	"github.com/kebairia/backupd/internal/retention"
)

// Job is invoked on each trigger. Failures are the job's business; the
// scheduler keeps ticking regardless.
type Job func(ctx context.Context, kind retention.Kind)

// Scheduler fires the job on independent nightly and weekly intervals.
type Scheduler struct {
	NightlyInterval time.Duration
	WeeklyInterval  time.Duration
	Run             Job
	Logger          logger.Logger
}

// New returns a Scheduler over the given intervals.
func New(nightly, weekly time.Duration, run Job) *Scheduler {
	return &Scheduler{
		NightlyInterval: nightly,
		WeeklyInterval:  weekly,
		Run:             run,
		Logger:          logger.Component("scheduler"),
	}
}

// Start blocks until ctx is cancelled, triggering the job per kind on its
// interval. Kinds tick independently; within one kind, runs are sequential
// so a slow run simply delays the next tick's work.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(2)
	go s.loop(ctx, &wg, retention.Nightly, s.NightlyInterval)
	go s.loop(ctx, &wg, retention.Weekly, s.WeeklyInterval)

	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, wg *sync.WaitGroup, kind retention.Kind, interval time.Duration) {
	defer wg.Done()

	s.Logger.Info("schedule armed", "backup_type", string(kind), "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("schedule stopped", "backup_type", string(kind))
			return
		case <-ticker.C:
			s.Run(ctx, kind)
		}
	}
}
