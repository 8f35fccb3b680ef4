// Package queue serializes background command execution: one
// dispatcher goroutine runs one job at a time, so database writes
// from scheduled and API-triggered work never interleave.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/events"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job is one queued unit of work.
type Job struct {
	ID         string     `json:"id"`
	Verb       string     `json:"verb"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Handler executes one job verb.
type Handler func(ctx context.Context) error

// Manager owns the job intake channel, the handler registry and the
// job ledger. Enqueue is safe from any goroutine; execution happens
// on the single dispatcher started by Start.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	jobs     map[string]*Job
	order    []string

	intake chan string
	bus    *events.Bus
	log    zerolog.Logger

	startOnce sync.Once
	done      chan struct{}
}

const intakeBuffer = 32

// maxLedger bounds the in-memory job history.
const maxLedger = 200

func NewManager(bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		handlers: make(map[string]Handler),
		jobs:     make(map[string]*Job),
		intake:   make(chan string, intakeBuffer),
		bus:      bus,
		log:      log.With().Str("component", "queue").Logger(),
		done:     make(chan struct{}),
	}
}

// Register binds a verb to its handler. Later registrations of the
// same verb replace the earlier one.
func (m *Manager) Register(verb string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[verb] = h
}

// Enqueue queues one job for the verb and returns its snapshot. It
// fails for unknown verbs and when the intake buffer is full.
func (m *Manager) Enqueue(verb string) (Job, error) {
	m.mu.Lock()
	if _, ok := m.handlers[verb]; !ok {
		m.mu.Unlock()
		return Job{}, fmt.Errorf("unknown job verb %q", verb)
	}
	job := &Job{
		ID:         uuid.NewString(),
		Verb:       verb,
		Status:     StatusPending,
		EnqueuedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	m.order = append(m.order, job.ID)
	m.trimLedgerLocked()
	m.mu.Unlock()

	select {
	case m.intake <- job.ID:
	default:
		m.mu.Lock()
		job.Status = StatusFailed
		job.Error = "queue full"
		m.mu.Unlock()
		return *job, fmt.Errorf("queue full, job %s rejected", job.ID)
	}

	m.publish(events.JobQueued, job)
	m.log.Info().Str("job", job.ID).Str("verb", verb).Msg("job queued")
	return *job, nil
}

// Start launches the dispatcher. It returns when ctx is cancelled and
// the in-flight job (if any) has finished.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.dispatch(ctx)
	})
}

// Wait blocks until the dispatcher has exited.
func (m *Manager) Wait() { <-m.done }

func (m *Manager) dispatch(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.intake:
			m.run(ctx, id)
		}
	}
}

func (m *Manager) run(ctx context.Context, id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	handler := m.handlers[job.Verb]
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	m.mu.Unlock()

	m.publish(events.JobStarted, job)
	m.log.Info().Str("job", id).Str("verb", job.Verb).Msg("job started")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return handler(ctx)
	}()

	m.mu.Lock()
	finished := time.Now()
	job.FinishedAt = &finished
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusDone
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Error().Err(err).Str("job", id).Str("verb", job.Verb).Msg("job failed")
	} else {
		m.log.Info().Str("job", id).Str("verb", job.Verb).
			Dur("took", finished.Sub(*job.StartedAt)).Msg("job finished")
	}
	m.publish(events.JobFinished, job)
}

// Get returns a job snapshot by ID.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns snapshots of the most recent jobs, newest first.
func (m *Manager) Jobs(limit int) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]Job, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.jobs[m.order[i]])
	}
	return out
}

// Verbs lists the registered job verbs.
func (m *Manager) Verbs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.handlers))
	for verb := range m.handlers {
		out = append(out, verb)
	}
	return out
}

func (m *Manager) publish(t events.EventType, job *Job) {
	if m.bus == nil {
		return
	}
	m.mu.RLock()
	data := map[string]interface{}{
		"job_id": job.ID,
		"verb":   job.Verb,
		"status": string(job.Status),
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	m.mu.RUnlock()
	m.bus.Publish(t, data)
}

func (m *Manager) trimLedgerLocked() {
	for len(m.order) > maxLedger {
		oldest := m.order[0]
		if job := m.jobs[oldest]; job != nil && (job.Status == StatusPending || job.Status == StatusRunning) {
			break
		}
		m.order = m.order[1:]
		delete(m.jobs, oldest)
	}
}
