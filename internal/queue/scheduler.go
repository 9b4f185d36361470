package queue

import (
	"context"
	"time"

	"github.com/civicdocs/docmirror/pkg/logger"
)

// Scheduler triggers a unit of work on a fixed interval. The first run
// fires immediately. A run that fails is logged and the schedule keeps
// going; isolation between runs is the caller's concern.
type Scheduler struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func NewScheduler(name string, interval time.Duration, run func(ctx context.Context) error) *Scheduler {
	return &Scheduler{name: name, interval: interval, run: run}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("scheduler %s: run failed: %v", s.name, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
