// File: facade/taskpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskPool wires a thread pool to its configuration, logger, metrics and
// debug probes so applications deal with a single object.

package facade

import (
	"context"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/control"
	"github.com/momentics/hioload-taskpool/pool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// TaskPool is the main facade type.
type TaskPool struct {
	cfg    control.Config
	logger log.Logger
	pool   *pool.ThreadPool
	debug  *control.DebugProbes

	mu      sync.Mutex
	started bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*TaskPool)(nil)

// New validates cfg and builds an unstarted pool from it. logger and reg may
// be nil.
func New(cfg control.Config, logger log.Logger, reg prometheus.Registerer) (*TaskPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid pool config")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	opts := []pool.Option{pool.WithConfig(cfg), pool.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, pool.WithRegisterer(reg))
	}
	tp := &TaskPool{
		cfg:    cfg,
		logger: logger,
		pool:   pool.New(opts...),
		debug:  control.NewDebugProbes(),
	}
	tp.pool.RegisterDebugProbes(tp.debug)
	control.RegisterPlatformProbes(tp.debug)
	return tp, nil
}

// Start launches the configured number of workers. Subsequent calls have
// no effect.
func (t *TaskPool) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	if err := t.pool.Start(t.cfg.Workers); err != nil {
		return err
	}
	t.started = true
	return nil
}

// Shutdown waits up to the configured drain timeout, or until ctx is done,
// for queued tasks and then closes the pool. The pool is closed even when
// the drain is cut short; the returned error then wraps the context error.
func (t *TaskPool) Shutdown(ctx context.Context) error {
	if t.cfg.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.DrainTimeout)
		defer cancel()
	}
	err := t.pool.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		dropped := t.pool.Stats().Dropped
		level.Warn(t.logger).Log("msg", "shutdown did not drain all tasks", "dropped", dropped)
		return errors.Wrapf(err, "drain incomplete, %d tasks dropped", dropped)
	}
	return err
}

// Close closes the pool without draining.
func (t *TaskPool) Close() error {
	return t.pool.Close()
}

// Submit schedules task on the pool.
func (t *TaskPool) Submit(task func()) error {
	return t.pool.Submit(task)
}

// AddTask schedules fn(args...) on the pool.
func (t *TaskPool) AddTask(fn any, args ...any) error {
	return t.pool.AddTask(fn, args...)
}

// Pool returns the underlying thread pool.
func (t *TaskPool) Pool() *pool.ThreadPool {
	return t.pool
}

// GetDebugAPI returns the probe registry holding pool and platform state.
func (t *TaskPool) GetDebugAPI() *control.DebugProbes {
	return t.debug
}

// Config returns the configuration the pool was built from.
func (t *TaskPool) Config() control.Config {
	return t.cfg
}
