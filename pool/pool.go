// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ThreadPool lifecycle and task submission.

package pool

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/control"
	"github.com/momentics/hioload-taskpool/internal/concurrency"
	"github.com/momentics/hioload-taskpool/internal/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const (
	stateUnstarted int32 = iota
	stateStarted
	stateClosed
)

// drainPoll is how often Drain checks for outstanding tasks.
const drainPoll = 5 * time.Millisecond

// ThreadPool runs submitted tasks on a fixed set of worker OS threads.
//
// A pool is started once and closed once. AddTask may be called from any
// goroutine, including tasks running on the pool itself. Close must not be
// called from a task.
type ThreadPool struct {
	id       string
	name     string
	endpoint string
	opts     options
	logger   log.Logger
	metrics  *control.PoolMetrics

	// mu serializes Start and Close. AddTask never takes it.
	mu       sync.Mutex
	state    atomic.Int32
	size     atomic.Int32
	listener *transport.Listener
	registry api.Registry
	threads  []*concurrency.Thread

	workerTIDs sync.Map // tid -> worker index
	clients    *channelTable
	accepted   *channelSet
	envelopes  envelopeTable
	running    atomic.Int64
	stats      struct {
		dialed, accepted, reaped, submitted, inline, executed, panicked, dropped atomic.Uint64
	}
}

var (
	_ api.Executor         = (*ThreadPool)(nil)
	_ api.GracefulShutdown = (*ThreadPool)(nil)
)

// New creates an unstarted pool. The rendezvous path is fixed here: either
// the explicit endpoint or one generated inside the endpoint directory.
func New(opts ...Option) *ThreadPool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	name := o.name
	if name == "" {
		name = id
	}
	endpoint := o.endpoint
	if endpoint == "" && o.endpointDir != "" {
		endpoint = NewEndpointPath(o.endpointDir)
	}
	reg := o.registerer
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"pool": name}, reg)
	}

	return &ThreadPool{
		id:       id,
		name:     name,
		endpoint: endpoint,
		opts:     o,
		logger:   log.With(o.logger, "component", "taskpool", "pool", name),
		metrics:  control.NewPoolMetrics(reg),
		clients:  newChannelTable(),
		accepted: newChannelSet(),
	}
}

// ID returns the unique identifier generated for the pool.
func (p *ThreadPool) ID() string { return p.id }

// Endpoint returns the rendezvous socket path.
func (p *ThreadPool) Endpoint() string { return p.endpoint }

// Size returns the number of worker threads started.
func (p *ThreadPool) Size() int { return int(p.size.Load()) }

// Start creates the rendezvous listener and the shared registry, then starts
// count workers. A failure leaves whatever was created in place for Close to
// release; the pool cannot be started again.
func (p *ThreadPool) Start(count int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.state.Load() == stateClosed:
		return api.NewError(api.ErrCodeClosed, "pool is closed")
	case p.state.Load() == stateStarted || p.listener != nil:
		return api.NewError(api.ErrCodeAlreadyStarted, "pool already started")
	case p.endpoint == "":
		return api.NewError(api.ErrCodeEmptyEndpoint, "pool has no endpoint path")
	case count <= 0:
		return api.NewError(api.ErrCodeZeroWorkers, "worker count must be positive").
			WithContext("count", count)
	}

	l, err := transport.Listen(p.endpoint, p.opts.backlog)
	if err != nil {
		return api.NewError(api.ErrCodeListen, "listen on endpoint").
			WithContext("path", p.endpoint).WithCause(err)
	}
	p.listener = l

	reg, err := p.opts.newRegistry(count)
	if err != nil {
		return api.NewError(api.ErrCodeRegistryCreate, "create registry").WithCause(err)
	}
	p.registry = reg

	if _, err := reg.Add(l.Fd(), api.KindListener, l); err != nil {
		return api.NewError(api.ErrCodeRegisterListener, "register listener").WithCause(err)
	}

	p.threads = make([]*concurrency.Thread, 0, count)
	for i := 0; i < count; i++ {
		id := i
		th, err := concurrency.NewThread(id, p.opts.cpus.Assign(id), func() { p.dispatchLoop(id) })
		if err != nil {
			return api.NewError(api.ErrCodeThreadCreate, "create worker").
				WithContext("worker", id).WithCause(err)
		}
		p.threads = append(p.threads, th)
		if err := th.Start(); err != nil {
			return api.NewError(api.ErrCodeThreadStart, "start worker").
				WithContext("worker", id).WithCause(err)
		}
		p.size.Inc()
		p.metrics.Workers.Inc()
	}

	p.state.Store(stateStarted)
	level.Info(p.logger).Log("msg", "pool started", "workers", count, "endpoint", p.endpoint)
	return nil
}

// onWorker reports whether the calling goroutine is one of the pool's
// workers. Workers are locked to their threads, so no other goroutine can
// observe a worker tid.
func (p *ThreadPool) onWorker() bool {
	_, ok := p.workerTIDs.Load(concurrency.CurrentTID())
	return ok
}

// Close stops the workers and releases every resource the pool holds.
// Tasks submitted but not yet run are dropped. Close is idempotent, but must
// not be called from inside a task.
func (p *ThreadPool) Close() error {
	if p.onWorker() {
		return api.NewError(api.ErrCodeCloseFromWorker, "close called from a worker thread")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Load() == stateClosed {
		return nil
	}
	p.state.Store(stateClosed)

	if p.registry != nil {
		if err := p.registry.Shutdown(); err != nil {
			level.Warn(p.logger).Log("msg", "registry shutdown failed", "err", err)
		}
	}
	// Senders still blocked on a full channel fail from here on, including a
	// task that is holding up a worker.
	p.accepted.shutdownAll()
	for _, th := range p.threads {
		th.Join()
	}
	p.threads = nil
	p.size.Store(0)
	p.metrics.Workers.Set(0)

	// The listener goes before client channels: closing it resets channels
	// that were never accepted, so their blocked senders fail as well.
	p.accepted.closeAll()
	p.metrics.ChannelsOpen.Set(0)
	if p.listener != nil {
		if err := p.listener.Close(); err != nil {
			level.Warn(p.logger).Log("msg", "listener close failed", "err", err)
		}
		p.listener = nil
	}
	p.clients.closeAll()
	if p.registry != nil {
		if err := p.registry.Close(); err != nil {
			level.Warn(p.logger).Log("msg", "registry close failed", "err", err)
		}
		p.registry = nil
	}

	if n := p.envelopes.discard(); n > 0 {
		p.stats.dropped.Add(uint64(n))
		p.metrics.TasksDropped.Add(float64(n))
		level.Warn(p.logger).Log("msg", "dropped tasks that never ran", "count", n)
	}
	level.Info(p.logger).Log("msg", "pool closed")
	return nil
}

// Drain waits until every submitted task has run or ctx is done.
func (p *ThreadPool) Drain(ctx context.Context) error {
	if p.onWorker() {
		return api.NewError(api.ErrCodeCloseFromWorker, "drain called from a worker thread")
	}
	t := time.NewTicker(drainPoll)
	defer t.Stop()
	for {
		if p.envelopes.len() == 0 && p.running.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Shutdown drains the pool within ctx and then closes it. The drain error,
// if any, is returned after Close has run.
func (p *ThreadPool) Shutdown(ctx context.Context) error {
	err := p.Drain(ctx)
	if cerr := p.Close(); cerr != nil {
		return cerr
	}
	return err
}

func (p *ThreadPool) submitFailed(err *api.Error) error {
	p.metrics.SubmitFailures.WithLabelValues(err.Code.String()).Inc()
	return err
}

// AddTask queues fn(args...) for execution on some worker. fn may be a
// func(), an api.Task, or any function whose parameters accept args.
//
// The calling OS thread's task channel is created on first use and reused
// afterwards; a channel that fails to send is discarded so the next call
// reconnects. A task submitting from a worker never blocks: when its channel
// is full the new task runs inline on that worker. A nil return means the
// task was handed off and will run unless the pool is closed first.
func (p *ThreadPool) AddTask(fn any, args ...any) error {
	switch p.state.Load() {
	case stateUnstarted:
		return p.submitFailed(api.NewError(api.ErrCodeNotStarted, "pool not started"))
	case stateClosed:
		return p.submitFailed(api.NewError(api.ErrCodeClosed, "pool is closed"))
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tid := concurrency.CurrentTID()
	ch, aerr := p.threadChannel(tid)
	if aerr != nil {
		return p.submitFailed(aerr)
	}

	env, err := newEnvelope(fn, args...)
	if err != nil {
		return p.submitFailed(api.NewError(api.ErrCodeEnvelope, "bind task").WithCause(err))
	}

	ticket := p.envelopes.put(env)
	worker, onWorker := p.workerTIDs.Load(tid)
	if onWorker {
		err = ch.trySend(ticket)
	} else {
		err = ch.send(ticket)
	}
	switch {
	case err == nil:
	case onWorker && errors.Is(err, api.ErrWouldBlock):
		// A full channel may have nobody free to drain it but this worker.
		p.running.Inc()
		if env, ok := p.envelopes.claim(ticket); ok {
			p.stats.inline.Inc()
			p.execute(log.With(p.logger, "worker", worker, "tid", tid), env)
		} else {
			p.running.Dec()
		}
	default:
		p.clients.evict(ch)
		if env, ok := p.envelopes.claim(ticket); ok {
			env.release()
			return p.submitFailed(api.NewError(api.ErrCodeSend, "send task").WithCause(err))
		}
		// The ticket is gone: a worker ran it, or Close dropped it.
		if p.state.Load() == stateClosed {
			return p.submitFailed(api.NewError(api.ErrCodeClosed, "pool closed during submit"))
		}
		level.Debug(p.logger).Log("msg", "send reported failure after delivery", "err", err)
	}

	p.stats.submitted.Inc()
	p.metrics.TasksSubmitted.Inc()
	return nil
}

// Submit implements api.Executor.
func (p *ThreadPool) Submit(task func()) error {
	if task == nil {
		return p.submitFailed(api.NewError(api.ErrCodeEnvelope, "task is nil"))
	}
	return p.AddTask(task)
}

// threadChannel returns the task channel of OS thread tid, connecting one
// if the thread has none.
func (p *ThreadPool) threadChannel(tid int) (*clientChannel, *api.Error) {
	if ch := p.clients.get(tid); ch != nil {
		return ch, nil
	}
	if n := p.clients.reap(concurrency.ThreadAlive); n > 0 {
		p.stats.reaped.Add(uint64(n))
		level.Debug(p.logger).Log("msg", "closed task channels of exited threads", "count", n)
	}

	conn, err := transport.NewConn()
	if err != nil {
		return nil, api.NewError(api.ErrCodeChannelInit, "create task channel").WithCause(err)
	}
	if err := conn.Connect(p.endpoint); err != nil {
		_ = conn.Close()
		return nil, api.NewError(api.ErrCodeChannelLink, "connect task channel").
			WithContext("path", p.endpoint).WithCause(err)
	}

	ch, stored, err := p.clients.insert(&clientChannel{tid: tid, conn: conn})
	if err != nil {
		_ = conn.Close()
		return nil, api.NewError(api.ErrCodeClosed, "pool is closed").WithCause(err)
	}
	if !stored {
		_ = conn.Close()
		return ch, nil
	}
	p.stats.dialed.Inc()
	level.Debug(p.logger).Log("msg", "task channel connected", "tid", tid)
	return ch, nil
}

// DetachThread closes the task channel of the calling OS thread, if any.
// Only meaningful from a goroutine locked to its thread with
// runtime.LockOSThread; otherwise the thread may already serve others.
// Channels of threads that have exited are closed when another thread
// connects, or at Close.
func (p *ThreadPool) DetachThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if ch := p.clients.get(concurrency.CurrentTID()); ch != nil {
		p.clients.evict(ch)
	}
}

// Stats is a point-in-time view of a pool.
type Stats struct {
	Workers          int
	ThreadChannels   int
	OpenChannels     int
	ChannelsDialed   uint64
	ChannelsAccepted uint64
	ChannelsReaped   uint64
	Submitted        uint64
	RanInline        uint64
	Executed         uint64
	Panicked         uint64
	Dropped          uint64
	Pending          int
	Running          int64
}

// Stats returns current counters.
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Workers:          p.Size(),
		ThreadChannels:   p.clients.len(),
		OpenChannels:     p.accepted.len(),
		ChannelsDialed:   p.stats.dialed.Load(),
		ChannelsAccepted: p.stats.accepted.Load(),
		ChannelsReaped:   p.stats.reaped.Load(),
		Submitted:        p.stats.submitted.Load(),
		RanInline:        p.stats.inline.Load(),
		Executed:         p.stats.executed.Load(),
		Panicked:         p.stats.panicked.Load(),
		Dropped:          p.stats.dropped.Load(),
		Pending:          p.envelopes.len(),
		Running:          p.running.Load(),
	}
}

// RegisterDebugProbes exposes the pool state under "pool.<name>.".
func (p *ThreadPool) RegisterDebugProbes(dp *control.DebugProbes) {
	prefix := "pool." + p.name + "."
	dp.RegisterProbe(prefix+"endpoint", func() any { return p.endpoint })
	dp.RegisterProbe(prefix+"workers", func() any { return p.Size() })
	dp.RegisterProbe(prefix+"stats", func() any { return p.Stats() })
}

// UnregisterDebugProbes removes what RegisterDebugProbes added.
func (p *ThreadPool) UnregisterDebugProbes(dp *control.DebugProbes) {
	dp.UnregisterPrefix("pool." + p.name + ".")
}
