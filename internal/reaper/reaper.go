package reaper

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/avasko/dray/internal/jobstore"
	"github.com/avasko/dray/pkg/log"
)

// Options configures a Reaper.
type Options struct {
	// Interval between scheduled sweeps. Zero falls back to one hour. A
	// jitter of up to 10% is added per tick so multiple processes sharing
	// a clock do not sweep in lockstep.
	Interval time.Duration
	// MaxPerSweep bounds the records removed per pass; 0 means unbounded.
	MaxPerSweep int
	Logger      log.Logger
}

// Reaper schedules TTL sweeps over the job store.
type Reaper struct {
	store  *jobstore.Store
	opts   Options
	logger log.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// New creates a Reaper over the store.
func New(store *jobstore.Store, opts Options) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Reaper{
		store:  store,
		opts:   opts,
		logger: logger.With(log.Component("reaper")),
	}
}

// Start launches the sweep schedule. Calling Start on a running Reaper is
// a no-op.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Reaper) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		interval := r.opts.Interval
		select {
		case <-stop:
			return
		case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
			if _, err := r.Sweep(context.Background()); err != nil {
				r.logger.Error("scheduled sweep failed", log.Err(err))
			}
		}
	}
}

// Sweep runs one expiry pass now and returns the number of records
// removed. It is safe to call concurrently with the schedule.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.store.SweepExpired(ctx, 0, r.opts.MaxPerSweep)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.logger.Info("sweep removed expired jobs",
			log.Int("removed", n),
			log.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	}
	return n, nil
}
