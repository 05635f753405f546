package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/job"
	pebblestore "github.com/avasko/dray/internal/storage/pebble"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, config.Default().Retention)
}

func mustCreate(t *testing.T, s *Store, queue job.Queue, org string, nowMs int64) string {
	t.Helper()
	rec := &job.Record{
		Queue:       queue,
		OrgID:       org,
		Payload:     json.RawMessage(`[{"name":"a"}]`),
		RecordCount: 1,
	}
	id, err := s.Create(context.Background(), rec, nowMs)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestCreateThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)

	rec, err := s.Get(ctx, job.QueueMechanics, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != job.StatusQueued || rec.Progress != 0 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.CreatedAtMs != 1000 {
		t.Fatalf("createdAt: %d", rec.CreatedAtMs)
	}
	if rec.TTLExpiresAtMs != 1000+s.Retention().JobTTLMs {
		t.Fatalf("ttl not at hard cap: %d", rec.TTLExpiresAtMs)
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), job.QueueMechanics, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimIsFIFO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	first := mustCreate(t, s, job.QueuePolicies, "org-a", 1000)
	second := mustCreate(t, s, job.QueuePolicies, "org-a", 1000)

	rec, err := s.Claim(ctx, job.QueuePolicies, 2000)
	if err != nil || rec == nil {
		t.Fatalf("claim: %v %v", rec, err)
	}
	if rec.ID != first {
		t.Fatalf("expected oldest job %s, got %s", first, rec.ID)
	}
	if rec.Status != job.StatusActive || rec.ProcessedAtMs != 2000 {
		t.Fatalf("claimed record not active: %+v", rec)
	}

	rec2, err := s.Claim(ctx, job.QueuePolicies, 2001)
	if err != nil || rec2 == nil || rec2.ID != second {
		t.Fatalf("second claim: %+v %v", rec2, err)
	}

	rec3, err := s.Claim(ctx, job.QueuePolicies, 2002)
	if err != nil {
		t.Fatalf("empty claim: %v", err)
	}
	if rec3 != nil {
		t.Fatalf("claimed from empty queue: %+v", rec3)
	}
}

func TestClaimQueuesAreIndependent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreate(t, s, job.QueueMechanics, "org-a", 1000)

	if rec, err := s.Claim(ctx, job.QueuePolicies, 2000); err != nil || rec != nil {
		t.Fatalf("cross-queue claim: %+v %v", rec, err)
	}
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const jobs = 500
	const executors = 8

	for i := 0; i < jobs; i++ {
		mustCreate(t, s, job.QueueMechanics, "org-a", 0)
	}

	var mu sync.Mutex
	claimed := make(map[string]int, jobs)
	var wg sync.WaitGroup
	for w := 0; w < executors; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, err := s.Claim(ctx, job.QueueMechanics, 0)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if rec == nil {
					return
				}
				mu.Lock()
				claimed[rec.ID]++
				mu.Unlock()
				if err := s.Complete(ctx, job.QueueMechanics, rec.ID, nil, 0); err != nil {
					t.Errorf("complete: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
	counts, err := s.CountByStatus(ctx, job.QueueMechanics)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[job.StatusCompleted] != jobs || counts[job.StatusQueued] != 0 || counts[job.StatusActive] != 0 {
		t.Fatalf("unexpected terminal counts: %+v", counts)
	}
}

func TestProgressIsMonotoneAndActiveOnly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)

	// progress before claim is ignored
	if err := s.SetProgress(ctx, job.QueueMechanics, id, 50); err != nil {
		t.Fatalf("progress: %v", err)
	}
	rec, _ := s.Get(ctx, job.QueueMechanics, id)
	if rec.Progress != 0 {
		t.Fatalf("queued progress moved: %d", rec.Progress)
	}

	if _, err := s.Claim(ctx, job.QueueMechanics, 2000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.SetProgress(ctx, job.QueueMechanics, id, 60); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := s.SetProgress(ctx, job.QueueMechanics, id, 30); err != nil {
		t.Fatalf("progress regression should be dropped silently: %v", err)
	}
	rec, _ = s.Get(ctx, job.QueueMechanics, id)
	if rec.Progress != 60 {
		t.Fatalf("progress: %d, want 60", rec.Progress)
	}
}

func TestCompleteSetsResultAndTTL(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 2000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result := json.RawMessage(`{"processed":1}`)
	if err := s.Complete(ctx, job.QueueMechanics, id, result, 5000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, _ := s.Get(ctx, job.QueueMechanics, id)
	if rec.Status != job.StatusCompleted || rec.Progress != 100 {
		t.Fatalf("record: %+v", rec)
	}
	if string(rec.Result) != `{"processed":1}` {
		t.Fatalf("result: %s", rec.Result)
	}
	if rec.CompletedAtMs != 5000 || rec.TTLExpiresAtMs != 5000+s.Retention().CompletedTTLMs {
		t.Fatalf("ttl: completedAt=%d expires=%d", rec.CompletedAtMs, rec.TTLExpiresAtMs)
	}
}

func TestFailKeepsProgressAndReason(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 2000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_ = s.SetProgress(ctx, job.QueueMechanics, id, 40)
	if err := s.Fail(ctx, job.QueueMechanics, id, "validator exploded", 3000); err != nil {
		t.Fatalf("fail: %v", err)
	}
	rec, _ := s.Get(ctx, job.QueueMechanics, id)
	if rec.Status != job.StatusFailed || rec.FailedReason != "validator exploded" {
		t.Fatalf("record: %+v", rec)
	}
	if rec.Progress != 40 {
		t.Fatalf("progress should freeze at 40: %d", rec.Progress)
	}
	if rec.TTLExpiresAtMs != 3000+s.Retention().FailedTTLMs {
		t.Fatalf("ttl: %d", rec.TTLExpiresAtMs)
	}
}

func TestTerminalStatesAreSinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 2000); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.Complete(ctx, job.QueueMechanics, id, nil, 3000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.Fail(ctx, job.QueueMechanics, id, "too late", 4000); err == nil {
		t.Fatalf("expected error failing a completed job")
	}
}

func TestCountByStatusMatchesFixture(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// 3 queued + 2 active + 4 completed + 1 failed
	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, mustCreate(t, s, job.QueuePolicies, "org-a", 1000))
	}
	for i := 0; i < 7; i++ {
		if _, err := s.Claim(ctx, job.QueuePolicies, 2000); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := s.Complete(ctx, job.QueuePolicies, ids[i], nil, 3000); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	if err := s.Fail(ctx, job.QueuePolicies, ids[4], "boom", 3000); err != nil {
		t.Fatalf("fail: %v", err)
	}

	counts, err := s.CountByStatus(ctx, job.QueuePolicies)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	want := map[job.Status]int{
		job.StatusQueued:    3,
		job.StatusActive:    2,
		job.StatusCompleted: 4,
		job.StatusFailed:    1,
	}
	for st, n := range want {
		if counts[st] != n {
			t.Fatalf("%s: got %d want %d (all: %+v)", st, counts[st], n, counts)
		}
	}
}

func TestSweepExpiredRemovesOnlyDue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	done := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 1500); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.Complete(ctx, job.QueueMechanics, done, nil, 2000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	fresh := mustCreate(t, s, job.QueueMechanics, "org-a", 2000)

	// before the completed retention elapses nothing is due
	n, err := s.SweepExpired(ctx, 2000+s.Retention().CompletedTTLMs-1, 0)
	if err != nil || n != 0 {
		t.Fatalf("early sweep: %d %v", n, err)
	}

	// one minute after completion the completed job is due; the queued one
	// is only removed at its 3-day hard cap
	n, err = s.SweepExpired(ctx, 2000+s.Retention().CompletedTTLMs, 0)
	if err != nil || n != 1 {
		t.Fatalf("sweep: %d %v", n, err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, done); !errors.Is(err, ErrNotFound) {
		t.Fatalf("swept job still readable: %v", err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, fresh); err != nil {
		t.Fatalf("fresh job swept: %v", err)
	}
}

func TestSweepHonorsHardCapForUnclaimedJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)

	n, err := s.SweepExpired(ctx, 1000+s.Retention().JobTTLMs, 0)
	if err != nil || n != 1 {
		t.Fatalf("hard cap sweep: %d %v", n, err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("job outlived hard cap: %v", err)
	}
	// its pending entry is gone too: the queue claims nothing
	if rec, err := s.Claim(ctx, job.QueueMechanics, 0); err != nil || rec != nil {
		t.Fatalf("claimed swept job: %+v %v", rec, err)
	}
}

func TestProgressCannotResurrectSweptRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 1500); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// active jobs are removed at the hard cap
	n, err := s.SweepExpired(ctx, 1000+s.Retention().JobTTLMs, 0)
	if err != nil || n != 1 {
		t.Fatalf("sweep: %d %v", n, err)
	}

	if err := s.SetProgress(ctx, job.QueueMechanics, id, 50); err != nil {
		t.Fatalf("progress after sweep: %v", err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("progress write resurrected a swept record: %v", err)
	}
}

func TestFailedJobsOutliveCompletedOnes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	completed := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	failed := mustCreate(t, s, job.QueueMechanics, "org-a", 1000)
	if _, err := s.Claim(ctx, job.QueueMechanics, 1500); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.Claim(ctx, job.QueueMechanics, 1500); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.Complete(ctx, job.QueueMechanics, completed, nil, 2000); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.Fail(ctx, job.QueueMechanics, failed, "boom", 2000); err != nil {
		t.Fatalf("fail: %v", err)
	}

	// two minutes in: completed gone, failed still readable
	if _, err := s.SweepExpired(ctx, 2000+2*60*1000, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, completed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("completed job survived: %v", err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, failed); err != nil {
		t.Fatalf("failed job swept early: %v", err)
	}

	// five minutes in: failed gone as well
	if _, err := s.SweepExpired(ctx, 2000+s.Retention().FailedTTLMs, 0); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := s.Get(ctx, job.QueueMechanics, failed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed job survived: %v", err)
	}
}
