package reaper

import (
	"context"
	"encoding/json"
	"errors"
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

// createExpired writes a record whose hard cap already passed: creation
// shortly after the epoch puts the 3-day deadline decades in the past.
func createExpired(t *testing.T, s *jobstore.Store) string {
	t.Helper()
	rec := &job.Record{Queue: job.QueueMechanics, OrgID: "org-a", Payload: json.RawMessage(`[{}]`), RecordCount: 1}
	id, err := s.Create(context.Background(), rec, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestSweepOnDemand(t *testing.T) {
	s := openTestStore(t)
	id := createExpired(t, s)
	fresh := &job.Record{Queue: job.QueueMechanics, OrgID: "org-a", Payload: json.RawMessage(`[{}]`), RecordCount: 1}
	freshID, err := s.Create(context.Background(), fresh, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := New(s, Options{Interval: time.Hour})
	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if _, err := s.Get(context.Background(), job.QueueMechanics, id); !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("expired job survived: %v", err)
	}
	if _, err := s.Get(context.Background(), job.QueueMechanics, freshID); err != nil {
		t.Fatalf("fresh job swept: %v", err)
	}
}

func TestScheduledSweep(t *testing.T) {
	s := openTestStore(t)
	id := createExpired(t, s)

	r := New(s, Options{Interval: 20 * time.Millisecond})
	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Get(context.Background(), job.QueueMechanics, id); errors.Is(err, jobstore.ErrNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scheduled sweep never removed the expired job")
}

func TestStartStopIdempotent(t *testing.T) {
	s := openTestStore(t)
	r := New(s, Options{Interval: 10 * time.Millisecond})
	r.Start()
	r.Start()
	r.Stop()
	r.Stop()
}
