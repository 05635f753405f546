package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/avasko/dray/internal/job"
	"github.com/avasko/dray/internal/jobstore"
	"github.com/avasko/dray/pkg/log"
)

// Handler processes one job's payload. report publishes progress in the
// 0..100 range; calls are best-effort and may be dropped. The returned
// raw message is stored as the job result on success.
type Handler func(ctx context.Context, payload json.RawMessage, report func(progress int)) (json.RawMessage, error)

// Registry maps queues to their handlers. Register before Pool.Start;
// the registry is read-only afterwards.
type Registry struct {
	mu       sync.Mutex
	handlers map[job.Queue]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[job.Queue]Handler)}
}

// Register binds a handler to a queue, replacing any previous binding.
func (r *Registry) Register(queue job.Queue, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[queue] = h
}

// Handler returns the handler bound to the queue, if any.
func (r *Registry) Handler(queue job.Queue) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[queue]
	return h, ok
}

// Queues returns the queues with a registered handler.
func (r *Registry) Queues() []job.Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]job.Queue, 0, len(r.handlers))
	for q := range r.handlers {
		out = append(out, q)
	}
	return out
}

// Options configures a Pool.
type Options struct {
	// ExecutorsPerQueue is the number of concurrent executors per queue.
	// Values below 1 fall back to 1.
	ExecutorsPerQueue int
	// PollInterval is the idle sleep between claim attempts on an empty
	// queue. Zero falls back to 250ms. A jitter of up to 10% is added so
	// executors do not wake in lockstep.
	PollInterval time.Duration
	Logger       log.Logger
}

// Pool drains registered queues with a fixed set of executor goroutines.
type Pool struct {
	store    *jobstore.Store
	registry *Registry
	opts     Options
	logger   log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a Pool over the store and registry.
func NewPool(store *jobstore.Store, registry *Registry, opts Options) *Pool {
	if opts.ExecutorsPerQueue < 1 {
		opts.ExecutorsPerQueue = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Pool{
		store:    store,
		registry: registry,
		opts:     opts,
		logger:   logger.With(log.Component("worker")),
	}
}

// Start launches the executors. It returns immediately; executors run
// until Stop is called or ctx is canceled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, queue := range p.registry.Queues() {
		for i := 0; i < p.opts.ExecutorsPerQueue; i++ {
			p.wg.Add(1)
			go p.runExecutor(ctx, queue, i)
		}
	}
}

// Stop cancels the executors and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) runExecutor(ctx context.Context, queue job.Queue, n int) {
	defer p.wg.Done()
	logger := p.logger.With(log.Str("queue", string(queue)), log.Int("executor", n))
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(n)))

	for {
		// A cancelled pool must not take new work: anything still queued
		// stays queued for the next process to claim.
		if ctx.Err() != nil {
			return
		}
		rec, err := p.store.Claim(ctx, queue, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", log.Err(err))
		}
		if rec != nil {
			p.runJob(ctx, rec, logger)
			continue
		}
		// idle or errored: back off with jitter before the next claim
		intv := p.opts.PollInterval
		select {
		case <-ctx.Done():
			return
		case <-time.After(intv + time.Duration(rng.Int63n(int64(intv/10+1)))):
		}
	}
}

// runJob executes one claimed record through its handler and records the
// terminal state. The job outcome is written even when ctx is already
// canceled, so shutdown never strands an active record without a result.
func (p *Pool) runJob(ctx context.Context, rec *job.Record, logger log.Logger) {
	handler, ok := p.registry.Handler(rec.Queue)
	if !ok {
		// Claimed from a queue whose handler was never registered; the
		// pool only drains registered queues, so this is a wiring bug.
		p.fail(rec, fmt.Sprintf("no handler registered for queue %s", rec.Queue), logger)
		return
	}

	logger.Info("job started", log.Str("job_id", rec.ID), log.Int("records", rec.RecordCount))
	start := time.Now()

	result, err := p.invoke(ctx, handler, rec)
	if err != nil {
		logger.Warn("job failed",
			log.Str("job_id", rec.ID),
			log.Err(err),
			log.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		p.fail(rec, err.Error(), logger)
		return
	}

	if err := p.store.Complete(context.Background(), rec.Queue, rec.ID, result, 0); err != nil {
		logger.Error("record completion failed", log.Str("job_id", rec.ID), log.Err(err))
		return
	}
	logger.Info("job completed",
		log.Str("job_id", rec.ID),
		log.Int64("elapsed_ms", time.Since(start).Milliseconds()))
}

// invoke runs the handler with panic recovery.
func (p *Pool) invoke(ctx context.Context, handler Handler, rec *job.Record) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	report := func(progress int) {
		_ = p.store.SetProgress(context.Background(), rec.Queue, rec.ID, progress)
	}
	return handler(ctx, rec.Payload, report)
}

func (p *Pool) fail(rec *job.Record, reason string, logger log.Logger) {
	if err := p.store.Fail(context.Background(), rec.Queue, rec.ID, reason, 0); err != nil {
		logger.Error("record failure write failed", log.Str("job_id", rec.ID), log.Err(err))
	}
}
