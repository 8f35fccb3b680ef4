// Package scheduler drives the daily routine on cron expressions:
// NAV updates after the market close, the advisory run after NAVs
// settle, weekly reflection and the offsite backup.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/queue"
)

// Default cron expressions, China trading calendar. Fund NAVs for day
// T publish in the evening, so updates run at 20:00 and the advisory
// at 20:30 once fresh NAVs are in.
const (
	SpecDailyUpdate      = "0 20 * * 1-5"
	SpecDailyAdvisory    = "30 20 * * 1-5"
	SpecWeeklyReflection = "0 21 * * 6"
	SpecWeeklyLearning   = "30 21 * * 6"
	SpecWeeklyBackup     = "0 22 * * 6"
)

// Entry is one scheduled job binding.
type Entry struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	Verb     string    `json:"verb"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
	RunCount int       `json:"run_count"`
}

// Scheduler enqueues job verbs on cron schedules. Execution itself
// stays in the queue so scheduled and API-triggered work share the
// same serialization.
type Scheduler struct {
	cron    *cron.Cron
	manager *queue.Manager
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[cron.EntryID]*Entry
}

func New(manager *queue.Manager, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.Local)),
		manager: manager,
		log:     log.With().Str("component", "scheduler").Logger(),
		entries: make(map[cron.EntryID]*Entry),
	}
}

// Add schedules the queue verb under the cron spec. The spec is
// validated up front; a bad expression fails fast at wiring time.
func (s *Scheduler) Add(name, spec, verb string) error {
	entry := &Entry{Name: name, Spec: spec, Verb: verb}
	id, err := s.cron.AddFunc(spec, func() { s.fire(entry) })
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	s.log.Info().Str("job", name).Str("spec", spec).Str("verb", verb).Msg("job scheduled")
	return nil
}

// AddDefaults wires the standard weekday/weekend routine.
func (s *Scheduler) AddDefaults() error {
	defaults := []struct{ name, spec, verb string }{
		{"daily_update", SpecDailyUpdate, "update"},
		{"daily_advisory", SpecDailyAdvisory, "daily"},
		{"weekly_reflection", SpecWeeklyReflection, "reflect"},
		{"weekly_learning", SpecWeeklyLearning, "learn"},
		{"weekly_backup", SpecWeeklyBackup, "backup"},
	}
	for _, d := range defaults {
		if err := s.Add(d.name, d.spec, d.verb); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) fire(entry *Entry) {
	s.mu.Lock()
	entry.LastRun = time.Now()
	entry.RunCount++
	s.mu.Unlock()

	if _, err := s.manager.Enqueue(entry.Verb); err != nil {
		s.log.Error().Err(err).Str("job", entry.Name).Msg("scheduled enqueue failed")
		return
	}
	s.log.Info().Str("job", entry.Name).Str("verb", entry.Verb).Msg("scheduled job enqueued")
}

// Start begins firing schedules. Stop with Stop.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight fire callbacks.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// Entries lists the current schedule with next-run times.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, ce := range s.cron.Entries() {
		if entry, ok := s.entries[ce.ID]; ok {
			snapshot := *entry
			snapshot.NextRun = ce.Next
			out = append(out, snapshot)
		}
	}
	return out
}
