package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	cfgpkg "github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/ingest"
	"github.com/avasko/dray/internal/reaper"
	"github.com/avasko/dray/internal/runtime"
	httpserver "github.com/avasko/dray/internal/server/http"
	jobsvc "github.com/avasko/dray/internal/services/jobs"
	pebblestore "github.com/avasko/dray/internal/storage/pebble"
	"github.com/avasko/dray/internal/worker"
	logpkg "github.com/avasko/dray/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the workers, reaper, and HTTP server and blocks until ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context; a
	// local signal context is layered over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	if opts.Config == (cfgpkg.Config{}) {
		opts.Config = cfgpkg.Default()
		cfgpkg.FromEnv(&opts.Config)
	}
	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Process-wide logger from env; defaults: level=info, format=text.
	logCfg := &logpkg.Config{
		Level:  getenvDefault("DRAY_LOG_LEVEL", "info"),
		Format: getenvDefault("DRAY_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	logpkg.SetDefaultLogger(procLogger)

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	cfg := rt.Config()
	procLogger.Info("Starting dray server",
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("level", logCfg.Level),
		logpkg.Str("format", logCfg.Format),
		logpkg.Int("workers_per_queue", cfg.WorkersPerQueue),
		logpkg.Int64("sweep_interval_ms", cfg.Retention.SweepIntervalMs),
	)

	svc := jobsvc.NewWithLogger(rt.Store(), cfg, procLogger)

	registry := worker.NewRegistry()
	ingest.RegisterAll(registry)
	pool := worker.NewPool(rt.Store(), registry, worker.Options{
		ExecutorsPerQueue: cfg.WorkersPerQueue,
		PollInterval:      time.Duration(cfg.ClaimPollMs) * time.Millisecond,
		Logger:            procLogger,
	})
	pool.Start(sctx)

	sweeper := reaper.New(rt.Store(), reaper.Options{
		Interval: time.Duration(cfg.Retention.SweepIntervalMs) * time.Millisecond,
		Logger:   procLogger,
	})
	sweeper.Start()

	hsrv := httpserver.New(rt, svc)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, opts.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Shutdown order: stop accepting requests, halt the sweep schedule,
	// drain in-flight jobs, then close storage.
	hsrv.Close()
	wg.Wait()
	sweeper.Stop()
	pool.Stop()
	return nil
}
