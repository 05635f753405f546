package jobsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/job"
	"github.com/avasko/dray/internal/jobstore"
	logpkg "github.com/avasko/dray/pkg/log"
)

// Service errors. Transports map these onto their own status codes.
var (
	ErrUnknownQueue = errors.New("jobsvc: unknown queue")
	ErrEmptyPayload = errors.New("jobsvc: empty payload")
	ErrNotFound     = errors.New("jobsvc: job not found")
	ErrForbidden    = errors.New("jobsvc: job belongs to another organization")
)

// Service provides the producer, status, stats, and cleanup operations
// over the job store.
type Service struct {
	store  *jobstore.Store
	cfg    config.Config
	logger logpkg.Logger
}

// New returns a Service using a default logger.
func New(store *jobstore.Store, cfg config.Config) *Service {
	return NewWithLogger(store, cfg, nil)
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(store *jobstore.Store, cfg config.Config, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.GetDefaultLogger()
	}
	return &Service{store: store, cfg: cfg, logger: logger.With(logpkg.Component("jobs"))}
}

// Enqueue validates and durably queues one submission. The job is
// claimable by workers as soon as Enqueue returns.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Receipt, error) {
	if _, ok := job.ParseQueue(string(req.Queue)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, req.Queue)
	}
	if len(req.Payload) == 0 || req.RecordCount < 1 {
		return nil, ErrEmptyPayload
	}

	rec := &job.Record{
		Queue:       req.Queue,
		OrgID:       req.OrgID,
		Payload:     req.Payload,
		RecordCount: req.RecordCount,
	}
	id, err := s.store.Create(ctx, rec, 0)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	s.logger.Info("job enqueued",
		logpkg.Str("job_id", id),
		logpkg.Str("queue", string(req.Queue)),
		logpkg.Str("org_id", req.OrgID),
		logpkg.Int("records", req.RecordCount))
	return &Receipt{
		JobID:       id,
		Queue:       req.Queue,
		RecordCount: req.RecordCount,
		EstimatedMs: int64(req.RecordCount) * int64(s.cfg.EstimatePerRecordMs),
	}, nil
}

// Status returns the org-visible view of one job. A job owned by another
// organization yields ErrForbidden; an unknown or already-reaped id
// yields ErrNotFound.
func (s *Service) Status(ctx context.Context, orgID string, queue job.Queue, jobID string) (*StatusView, error) {
	if _, ok := job.ParseQueue(string(queue)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	rec, err := s.store.Get(ctx, queue, jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rec.OrgID != orgID {
		return nil, ErrForbidden
	}
	return &StatusView{
		JobID:          rec.ID,
		Queue:          rec.Queue,
		Status:         rec.Status,
		Progress:       rec.Progress,
		RecordCount:    rec.RecordCount,
		Result:         rec.Result,
		FailedReason:   rec.FailedReason,
		CreatedAtMs:    rec.CreatedAtMs,
		ProcessedAtMs:  rec.ProcessedAtMs,
		CompletedAtMs:  rec.CompletedAtMs,
		TTLExpiresAtMs: rec.TTLExpiresAtMs,
	}, nil
}

// QueueStats returns the status breakdown for one queue.
func (s *Service) QueueStats(ctx context.Context, queue job.Queue) (*QueueStatsView, error) {
	if _, ok := job.ParseQueue(string(queue)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	counts, err := s.store.CountByStatus(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: %w", queue, err)
	}
	view := &QueueStatsView{
		Queue:     queue,
		Queued:    counts[job.StatusQueued],
		Active:    counts[job.StatusActive],
		Completed: counts[job.StatusCompleted],
		Failed:    counts[job.StatusFailed],
	}
	view.Total = view.Queued + view.Active + view.Completed + view.Failed
	return view, nil
}

// AllQueueStats returns the breakdown for every known queue. A queue
// whose scan fails is reported as an error entry without hiding the
// others.
func (s *Service) AllQueueStats(ctx context.Context) (map[job.Queue]*QueueStatsView, map[job.Queue]error) {
	views := make(map[job.Queue]*QueueStatsView, len(job.Queues()))
	errs := map[job.Queue]error{}
	for _, q := range job.Queues() {
		view, err := s.QueueStats(ctx, q)
		if err != nil {
			s.logger.Warn("queue stats failed", logpkg.Str("queue", string(q)), logpkg.Err(err))
			errs[q] = err
			continue
		}
		views[q] = view
	}
	return views, errs
}

// Cleanup runs one TTL sweep now and returns the number of records
// removed.
func (s *Service) Cleanup(ctx context.Context, triggeredBy string) (int, error) {
	n, err := s.store.SweepExpired(ctx, 0, 0)
	if err != nil {
		return n, fmt.Errorf("cleanup: %w", err)
	}
	s.logger.Info("manual cleanup",
		logpkg.Str("triggered_by", triggeredBy),
		logpkg.Int("removed", n))
	return n, nil
}

// TTLConfig reports the active retention policy.
func (s *Service) TTLConfig() *TTLConfigView {
	ret := s.store.Retention()
	return &TTLConfigView{
		JobTTL:        ttlValue(ret.JobTTLMs),
		CompletedTTL:  ttlValue(ret.CompletedTTLMs),
		FailedTTL:     ttlValue(ret.FailedTTLMs),
		SweepInterval: ttlValue(ret.SweepIntervalMs),
	}
}

func ttlValue(ms int64) TTLValue {
	return TTLValue{
		Ms:      ms,
		Seconds: ms / 1000,
		Human:   humanDuration(ms),
	}
}

// humanDuration renders a millisecond span in its largest whole unit,
// matching how operators talk about retention ("3 days", "5 minutes").
func humanDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return plural(int64(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
