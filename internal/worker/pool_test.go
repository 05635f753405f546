package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/job"
	"github.com/avasko/dray/internal/jobstore"
	pebblestore "github.com/avasko/dray/internal/storage/pebble"
)

func openTestStore(t *testing.T) *jobstore.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return jobstore.New(db, config.Default().Retention)
}

func enqueue(t *testing.T, s *jobstore.Store, queue job.Queue, payload string) string {
	t.Helper()
	rec := &job.Record{Queue: queue, OrgID: "org-a", Payload: json.RawMessage(payload), RecordCount: 1}
	id, err := s.Create(context.Background(), rec, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func waitTerminal(t *testing.T, s *jobstore.Store, queue job.Queue, id string) *job.Record {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.Get(context.Background(), queue, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func TestPoolCompletesJobs(t *testing.T) {
	s := openTestStore(t)
	reg := NewRegistry()
	reg.Register(job.QueueMechanics, func(_ context.Context, payload json.RawMessage, report func(int)) (json.RawMessage, error) {
		report(50)
		return json.RawMessage(`{"echo":` + string(payload) + `}`), nil
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 2, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())
	defer pool.Stop()

	id := enqueue(t, s, job.QueueMechanics, `[{"name":"a"}]`)
	rec := waitTerminal(t, s, job.QueueMechanics, id)
	if rec.Status != job.StatusCompleted || rec.Progress != 100 {
		t.Fatalf("record: %+v", rec)
	}
	if string(rec.Result) != `{"echo":[{"name":"a"}]}` {
		t.Fatalf("result: %s", rec.Result)
	}
}

func TestPoolRecordsHandlerError(t *testing.T) {
	s := openTestStore(t)
	reg := NewRegistry()
	reg.Register(job.QueuePolicies, func(context.Context, json.RawMessage, func(int)) (json.RawMessage, error) {
		return nil, errors.New("record 3: missing policy number")
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())
	defer pool.Stop()

	id := enqueue(t, s, job.QueuePolicies, `[{}]`)
	rec := waitTerminal(t, s, job.QueuePolicies, id)
	if rec.Status != job.StatusFailed {
		t.Fatalf("status: %s", rec.Status)
	}
	if rec.FailedReason != "record 3: missing policy number" {
		t.Fatalf("reason: %q", rec.FailedReason)
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	s := openTestStore(t)
	reg := NewRegistry()
	reg.Register(job.QueueServiceProviders, func(context.Context, json.RawMessage, func(int)) (json.RawMessage, error) {
		panic("boom")
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())
	defer pool.Stop()

	id := enqueue(t, s, job.QueueServiceProviders, `[{}]`)
	rec := waitTerminal(t, s, job.QueueServiceProviders, id)
	if rec.Status != job.StatusFailed {
		t.Fatalf("status: %s", rec.Status)
	}
	if rec.FailedReason != "handler panic: boom" {
		t.Fatalf("reason: %q", rec.FailedReason)
	}
}

func TestPoolOnlyDrainsRegisteredQueues(t *testing.T) {
	s := openTestStore(t)
	reg := NewRegistry()
	reg.Register(job.QueueMechanics, func(context.Context, json.RawMessage, func(int)) (json.RawMessage, error) {
		return nil, nil
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())
	defer pool.Stop()

	id := enqueue(t, s, job.QueuePolicies, `[{}]`)
	time.Sleep(100 * time.Millisecond)
	rec, err := s.Get(context.Background(), job.QueuePolicies, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != job.StatusQueued {
		t.Fatalf("unregistered queue drained: %s", rec.Status)
	}
}

func TestStopLeavesUnclaimedJobsQueued(t *testing.T) {
	s := openTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	reg := NewRegistry()
	reg.Register(job.QueueMechanics, func(context.Context, json.RawMessage, func(int)) (json.RawMessage, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, nil
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())

	for i := 0; i < 5; i++ {
		enqueue(t, s, job.QueueMechanics, `[{}]`)
	}
	<-started

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	// give Stop time to cancel the pool context before the in-flight
	// handler returns
	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	counts, err := s.CountByStatus(context.Background(), job.QueueMechanics)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[job.StatusFailed] != 0 {
		t.Fatalf("shutdown failed queued jobs: %+v", counts)
	}
	if counts[job.StatusCompleted] != 1 || counts[job.StatusQueued] != 4 {
		t.Fatalf("statuses after Stop: %+v, want 1 completed and 4 queued", counts)
	}
}

func TestPoolStopWaitsForExecutors(t *testing.T) {
	s := openTestStore(t)
	started := make(chan struct{})
	release := make(chan struct{})
	reg := NewRegistry()
	reg.Register(job.QueueMechanics, func(context.Context, json.RawMessage, func(int)) (json.RawMessage, error) {
		close(started)
		<-release
		return nil, nil
	})

	pool := NewPool(s, reg, Options{ExecutorsPerQueue: 1, PollInterval: 20 * time.Millisecond})
	pool.Start(context.Background())

	id := enqueue(t, s, job.QueueMechanics, `[{}]`)
	<-started

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("Stop returned while a job was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done

	rec, err := s.Get(context.Background(), job.QueueMechanics, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != job.StatusCompleted {
		t.Fatalf("in-flight job not finished on shutdown: %s", rec.Status)
	}
}
