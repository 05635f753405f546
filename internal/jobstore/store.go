package jobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/job"
	pebblestore "github.com/avasko/dray/internal/storage/pebble"
	"github.com/avasko/dray/pkg/id"
)

// ErrNotFound is returned when no record exists for (queue, id), whether it
// never existed or has already been reaped.
var ErrNotFound = errors.New("jobstore: record not found")

// Store is the durable queue store for job records, partitioned by queue
// name. All multi-key mutations commit as one Pebble batch; transitions
// and sweeps additionally serialize under a mutex so no two executors can
// move the same record out of queued and a sweep cannot interleave with a
// read-modify-write of the same record.
type Store struct {
	db  *pebblestore.DB
	ret config.Retention
	ids *id.Generator

	mu sync.Mutex // serializes record transitions and expiry sweeps
}

// New creates a Store with the given retention policy.
func New(db *pebblestore.DB, ret config.Retention) *Store {
	return &Store{db: db, ret: ret, ids: id.NewGenerator()}
}

// Retention returns the store's retention policy.
func (s *Store) Retention() config.Retention { return s.ret }

// Create persists a new queued record and returns its assigned id. The
// record becomes claimable as soon as Create returns.
func (s *Store) Create(ctx context.Context, rec *job.Record, nowMs int64) (string, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	rec.ID = s.ids.Next().String()
	rec.Status = job.StatusQueued
	rec.Progress = 0
	rec.CreatedAtMs = nowMs
	rec.TTLExpiresAtMs = nowMs + s.ret.JobTTLMs

	val, err := rec.Encode()
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(RecordKey(rec.Queue, rec.ID), val, nil); err != nil {
		return "", err
	}
	if err := b.Set(PendingKey(rec.Queue, rec.ID), nil, nil); err != nil {
		return "", err
	}
	if err := b.Set(StatusKey(rec.Queue, job.StatusQueued, rec.ID), nil, nil); err != nil {
		return "", err
	}
	if err := b.Set(TTLIdxKey(rec.TTLExpiresAtMs, rec.Queue, rec.ID), nil, nil); err != nil {
		return "", err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return "", fmt.Errorf("commit create: %w", err)
	}
	return rec.ID, nil
}

// Get loads a record by (queue, id).
func (s *Store) Get(_ context.Context, queue job.Queue, jobID string) (*job.Record, error) {
	val, err := s.db.Get(RecordKey(queue, jobID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job.Decode(val)
}

// Claim atomically takes the oldest queued record of the queue, transitions
// it to active, and stamps ProcessedAtMs. It returns (nil, nil) when the
// queue has no claimable work.
func (s *Store) Claim(ctx context.Context, queue job.Queue, nowMs int64) (*job.Record, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := PendingPrefix(queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		jobID := idFromIndexKey(iter.Key())
		if jobID == "" {
			continue
		}
		rec, err := s.Get(ctx, queue, jobID)
		if err != nil {
			// Stale pending entry for a vanished record; drop it and move on.
			if errors.Is(err, ErrNotFound) {
				_ = s.db.Delete(PendingKey(queue, jobID))
				continue
			}
			return nil, err
		}
		if rec.Status != job.StatusQueued {
			_ = s.db.Delete(PendingKey(queue, jobID))
			continue
		}

		rec.Status = job.StatusActive
		rec.ProcessedAtMs = nowMs
		val, err := rec.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode record: %w", err)
		}

		b := s.db.NewBatch()
		defer b.Close()
		if err := b.Delete(PendingKey(queue, jobID), nil); err != nil {
			return nil, err
		}
		if err := b.Delete(StatusKey(queue, job.StatusQueued, jobID), nil); err != nil {
			return nil, err
		}
		if err := b.Set(StatusKey(queue, job.StatusActive, jobID), nil, nil); err != nil {
			return nil, err
		}
		if err := b.Set(RecordKey(queue, jobID), val, nil); err != nil {
			return nil, err
		}
		if err := s.db.CommitBatch(ctx, b); err != nil {
			return nil, fmt.Errorf("commit claim: %w", err)
		}
		return rec, nil
	}
	return nil, nil
}

// SetProgress updates a record's progress while it is active. Writes are
// best-effort: regressions, out-of-range values, and non-active records are
// ignored without error so a worker's progress callback never fails the job.
func (s *Store) SetProgress(ctx context.Context, queue job.Queue, jobID string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, queue, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Status != job.StatusActive || progress <= rec.Progress {
		return nil
	}
	rec.Progress = progress
	val, err := rec.Encode()
	if err != nil {
		return err
	}
	return s.db.Set(RecordKey(queue, jobID), val)
}

// Complete transitions an active record to completed, stores its result,
// forces progress to 100, and rebases the TTL deadline on the terminal
// retention window.
func (s *Store) Complete(ctx context.Context, queue job.Queue, jobID string, result []byte, nowMs int64) error {
	return s.finish(ctx, queue, jobID, nowMs, func(rec *job.Record) {
		rec.Status = job.StatusCompleted
		rec.Progress = 100
		rec.Result = result
	})
}

// Fail transitions an active record to failed with a human-readable reason.
// Progress freezes at its last reported value.
func (s *Store) Fail(ctx context.Context, queue job.Queue, jobID string, reason string, nowMs int64) error {
	return s.finish(ctx, queue, jobID, nowMs, func(rec *job.Record) {
		rec.Status = job.StatusFailed
		rec.FailedReason = reason
	})
}

// finish applies a terminal mutation and moves the status and TTL indexes in
// one batch. A record swept mid-flight is a benign race: the terminal write
// is simply dropped.
func (s *Store) finish(ctx context.Context, queue job.Queue, jobID string, nowMs int64, mutate func(*job.Record)) error {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, queue, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("jobstore: job %s already %s", jobID, rec.Status)
	}

	prevStatus := rec.Status
	prevExpiry := rec.TTLExpiresAtMs
	rec.CompletedAtMs = nowMs
	mutate(rec)
	rec.TTLExpiresAtMs = s.terminalExpiry(rec)

	val, err := rec.Encode()
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(StatusKey(queue, prevStatus, jobID), nil); err != nil {
		return err
	}
	if err := b.Set(StatusKey(queue, rec.Status, jobID), nil, nil); err != nil {
		return err
	}
	if err := b.Delete(TTLIdxKey(prevExpiry, queue, jobID), nil); err != nil {
		return err
	}
	if err := b.Set(TTLIdxKey(rec.TTLExpiresAtMs, queue, jobID), nil, nil); err != nil {
		return err
	}
	if err := b.Set(RecordKey(queue, jobID), val, nil); err != nil {
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("commit terminal transition: %w", err)
	}
	return nil
}

// terminalExpiry computes the retention deadline after a terminal
// transition. The creation-time hard cap wins if it is earlier.
func (s *Store) terminalExpiry(rec *job.Record) int64 {
	hard := rec.CreatedAtMs + s.ret.JobTTLMs
	var exp int64
	switch rec.Status {
	case job.StatusCompleted:
		exp = rec.CompletedAtMs + s.ret.CompletedTTLMs
	case job.StatusFailed:
		exp = rec.CompletedAtMs + s.ret.FailedTTLMs
	default:
		exp = hard
	}
	if exp > hard {
		exp = hard
	}
	return exp
}

// CountByStatus counts the queue's records per status.
func (s *Store) CountByStatus(_ context.Context, queue job.Queue) (map[job.Status]int, error) {
	out := make(map[job.Status]int, 4)
	for _, st := range job.Statuses() {
		prefix := StatusPrefix(queue, st)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
		if err != nil {
			return nil, err
		}
		n := 0
		for ok := iter.First(); ok; ok = iter.Next() {
			n++
		}
		if err := iter.Close(); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, nil
}

// SweepExpired deletes every record whose TTL deadline is at or before
// nowMs, up to max records (0 means unbounded). It returns the number of
// records removed. Records that vanished since their index entry was
// written are skipped, not errors.
func (s *Store) SweepExpired(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := TTLIdxPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := s.db.NewBatch()
	defer b.Close()
	swept := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		expiresMs, queue, jobID, okKey := parseTTLIdxKey(iter.Key())
		if !okKey {
			continue
		}
		if expiresMs > nowMs {
			break
		}
		if err := b.Delete(append([]byte(nil), iter.Key()...), nil); err != nil {
			return swept, err
		}
		rec, err := s.Get(ctx, queue, jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return swept, err
		}
		if err := b.Delete(RecordKey(queue, jobID), nil); err != nil {
			return swept, err
		}
		if err := b.Delete(PendingKey(queue, jobID), nil); err != nil {
			return swept, err
		}
		if err := b.Delete(StatusKey(queue, rec.Status, jobID), nil); err != nil {
			return swept, err
		}
		swept++
		if max > 0 && swept >= max {
			break
		}
	}
	if b.Count() > 0 {
		if err := s.db.CommitBatch(ctx, b); err != nil {
			return 0, fmt.Errorf("commit sweep: %w", err)
		}
		// compaction hint after a large sweep
		if swept >= 4096 {
			_ = s.db.CompactRange(prefix, keyUpperBound(prefix))
		}
	}
	return swept, nil
}
