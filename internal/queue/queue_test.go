package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athang/pixiu/internal/events"
)

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Job {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			job, _ := m.Get(id)
			t.Fatalf("job %s stuck in %s, want %s", id, job.Status, want)
		case <-time.After(5 * time.Millisecond):
			if job, ok := m.Get(id); ok && job.Status == want {
				return job
			}
		}
	}
}

func TestEnqueueRejectsUnknownVerb(t *testing.T) {
	m := NewManager(events.NewBus(), zerolog.Nop())
	_, err := m.Enqueue("no_such_verb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job verb")
}

func TestJobRunsToDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(events.NewBus(), zerolog.Nop())
	var ran atomic.Bool
	m.Register("update", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	m.Start(ctx)

	job, err := m.Enqueue("update")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	finished := waitForStatus(t, m, job.ID, StatusDone)
	assert.True(t, ran.Load())
	assert.NotNil(t, finished.StartedAt)
	assert.NotNil(t, finished.FinishedAt)
	assert.Empty(t, finished.Error)
}

func TestFailedJobKeepsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(events.NewBus(), zerolog.Nop())
	m.Register("recommend", func(context.Context) error {
		return fmt.Errorf("llm unavailable")
	})
	m.Start(ctx)

	job, err := m.Enqueue("recommend")
	require.NoError(t, err)

	failed := waitForStatus(t, m, job.ID, StatusFailed)
	assert.Equal(t, "llm unavailable", failed.Error)
}

func TestPanickingJobIsContained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(events.NewBus(), zerolog.Nop())
	m.Register("boom", func(context.Context) error { panic("kaput") })
	m.Register("after", func(context.Context) error { return nil })
	m.Start(ctx)

	boom, err := m.Enqueue("boom")
	require.NoError(t, err)
	failed := waitForStatus(t, m, boom.ID, StatusFailed)
	assert.Contains(t, failed.Error, "kaput")

	// The dispatcher must survive the panic.
	after, err := m.Enqueue("after")
	require.NoError(t, err)
	waitForStatus(t, m, after.ID, StatusDone)
}

func TestJobsRunOneAtATime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(events.NewBus(), zerolog.Nop())
	var concurrent, peak atomic.Int32
	m.Register("slow", func(context.Context) error {
		cur := concurrent.Add(1)
		defer concurrent.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	m.Start(ctx)

	var last Job
	for i := 0; i < 4; i++ {
		job, err := m.Enqueue("slow")
		require.NoError(t, err)
		last = job
	}
	waitForStatus(t, m, last.ID, StatusDone)
	assert.Equal(t, int32(1), peak.Load(), "dispatcher must serialize jobs")
}

func TestQueuePublishesLifecycleEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch, unsub := bus.Subscribe()
	defer unsub()

	m := NewManager(bus, zerolog.Nop())
	m.Register("update", func(context.Context) error { return nil })
	m.Start(ctx)

	job, err := m.Enqueue("update")
	require.NoError(t, err)
	waitForStatus(t, m, job.ID, StatusDone)

	var seen []events.EventType
	timeout := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case evt := <-ch:
			assert.Equal(t, job.ID, evt.Data["job_id"])
			seen = append(seen, evt.Type)
		case <-timeout:
			t.Fatalf("missing lifecycle events, got %v", seen)
		}
	}
	assert.Equal(t, []events.EventType{events.JobQueued, events.JobStarted, events.JobFinished}, seen)
}

func TestJobsListNewestFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(events.NewBus(), zerolog.Nop())
	m.Register("update", func(context.Context) error { return nil })
	m.Start(ctx)

	var last Job
	for i := 0; i < 3; i++ {
		job, err := m.Enqueue("update")
		require.NoError(t, err)
		last = job
	}
	waitForStatus(t, m, last.ID, StatusDone)

	jobs := m.Jobs(2)
	require.Len(t, jobs, 2)
	assert.Equal(t, last.ID, jobs[0].ID)
}
