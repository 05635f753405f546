// Package runtime wires storage and config into the process-wide
// facade the server runner and tests build on.
package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/avasko/dray/internal/config"
	"github.com/avasko/dray/internal/jobstore"
	pebblestore "github.com/avasko/dray/internal/storage/pebble"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Runtime wires storage, config, and the job store for a single-node
// instance.
type Runtime struct {
	db     *pebblestore.DB
	store  *jobstore.Store
	config cfgpkg.Config
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == (cfgpkg.Config{}) {
		cfg = cfgpkg.Default()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Runtime{
		db:     db,
		store:  jobstore.New(db, cfg.Retention),
		config: cfg,
	}, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage health check.
func (r *Runtime) CheckHealth(_ context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Store returns the job store.
func (r *Runtime) Store() *jobstore.Store { return r.store }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
