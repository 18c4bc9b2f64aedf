// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// startSchedulerLocked arms the poll timer for the active tournament. Caller
// holds the service mutex; starting twice is a no-op.
func (s *TournamentService) startSchedulerLocked() {
	if s.sched != nil {
		return
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[Scheduler] failed to create scheduler: %v", err)
		return
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			// Bound each pass so a stalled judge cannot pile up ticks.
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			s.RunPoll(ctx)
		}),
	)
	if err != nil {
		log.Printf("[Scheduler] failed to schedule poll job: %v", err)
		return
	}

	sched.Start()
	s.sched = sched
	log.Printf("[Scheduler] ✅ polling every %s", interval)
}

func (s *TournamentService) stopSchedulerLocked() {
	if s.sched == nil {
		return
	}
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[Scheduler] shutdown error: %v", err)
	}
	s.sched = nil
}

// StopPollScheduler is the process-shutdown hook.
func (s *TournamentService) StopPollScheduler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopSchedulerLocked()
}
