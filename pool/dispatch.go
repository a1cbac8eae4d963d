// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker dispatch loop.

package pool

import (
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/internal/concurrency"
	"github.com/pkg/errors"
)

// waitErrorBackoff throttles a loop whose wait keeps failing.
const waitErrorBackoff = 10 * time.Millisecond

// dispatcher is the per-worker state of a dispatch loop. Nothing in it is
// shared with other workers.
type dispatcher struct {
	pool    *ThreadPool
	logger  log.Logger
	events  []api.Event
	buf     []byte
	tickets []uint64
}

// dispatchLoop serves readiness events until the registry shuts down.
func (p *ThreadPool) dispatchLoop(id int) {
	tid := concurrency.CurrentTID()
	p.workerTIDs.Store(tid, id)
	defer p.workerTIDs.Delete(tid)

	d := &dispatcher{
		pool:    p,
		logger:  log.With(p.logger, "worker", id, "tid", tid),
		events:  make([]api.Event, p.opts.eventBatch),
		buf:     make([]byte, p.opts.recvBuffer),
		tickets: make([]uint64, 0, p.opts.recvBuffer/ticketSize+1),
	}
	level.Debug(d.logger).Log("msg", "dispatch loop started")

	for {
		n, err := p.registry.Wait(d.events)
		if err != nil {
			if errors.Is(err, api.ErrRegistryClosed) {
				level.Debug(d.logger).Log("msg", "dispatch loop stopped")
				return
			}
			d.fail("wait", err)
			time.Sleep(waitErrorBackoff)
			continue
		}
		for i := range d.events[:n] {
			ev := &d.events[i]
			switch ev.Kind {
			case api.KindListener:
				d.accept(ev)
			case api.KindChannel:
				d.serve(ev)
			}
			ev.Value = nil
		}
	}
}

func (d *dispatcher) fail(op string, err error) {
	d.pool.metrics.DispatchErrors.WithLabelValues(op).Inc()
	level.Warn(d.logger).Log("msg", "dispatch error", "op", op, "err", err)
}

// accept takes one pending connection and registers it as a task channel.
// The listener is rearmed first so other workers can accept in parallel.
func (d *dispatcher) accept(ev *api.Event) {
	p := d.pool
	conn, err := p.listener.Accept()
	if rerr := p.registry.Rearm(ev.Tag); rerr != nil && !errors.Is(rerr, api.ErrRegistryClosed) {
		d.fail("rearm_listener", rerr)
	}
	if err != nil {
		if !errors.Is(err, api.ErrWouldBlock) {
			d.fail("accept", err)
		}
		return
	}

	sc := &serverChannel{conn: conn}
	p.accepted.add(sc)
	if _, err := p.registry.Add(conn.Fd(), api.KindChannel, sc); err != nil {
		p.accepted.remove(sc)
		_ = conn.Close()
		if !errors.Is(err, api.ErrRegistryClosed) {
			d.fail("register", err)
		}
		return
	}
	p.stats.accepted.Inc()
	p.metrics.ChannelsAccepted.Inc()
	p.metrics.ChannelsOpen.Inc()
	level.Debug(d.logger).Log("msg", "task channel accepted", "fd", conn.Fd())
}

// serve reads tickets from a ready channel and runs the tasks they name.
// The channel is rearmed before any task runs so a long task does not hold
// up later submissions on the same channel.
func (d *dispatcher) serve(ev *api.Event) {
	p := d.pool
	sc, ok := ev.Value.(*serverChannel)
	if !ok {
		d.fail("event", fmt.Errorf("unexpected channel value %T", ev.Value))
		return
	}

	n, err := sc.conn.Recv(d.buf)
	switch {
	case errors.Is(err, api.ErrWouldBlock) && ev.Hangup:
		d.drop("recv", ev.Tag, sc, io.EOF)
		return
	case errors.Is(err, api.ErrWouldBlock):
		d.rearm(ev.Tag, sc)
		return
	case err != nil:
		d.drop("recv", ev.Tag, sc, err)
		return
	}

	d.tickets = sc.decode(d.buf[:n], d.tickets[:0])
	d.rearm(ev.Tag, sc)
	for _, t := range d.tickets {
		p.running.Inc()
		env, ok := p.envelopes.claim(t)
		if !ok {
			p.running.Dec()
			continue
		}
		p.execute(d.logger, env)
	}
}

func (d *dispatcher) rearm(tag api.Tag, sc *serverChannel) {
	if err := d.pool.registry.Rearm(tag); err != nil {
		d.drop("rearm", tag, sc, err)
	}
}

// drop unregisters and closes a channel whose peer went away or that can no
// longer be armed. The submitter sees the close on its next send and
// reconnects.
func (d *dispatcher) drop(op string, tag api.Tag, sc *serverChannel, cause error) {
	p := d.pool
	_ = p.registry.Remove(tag)
	if !p.accepted.remove(sc) {
		return
	}
	_ = sc.conn.Close()
	p.metrics.ChannelsOpen.Dec()

	switch {
	case errors.Is(cause, io.EOF):
		level.Debug(d.logger).Log("msg", "task channel closed by peer")
	case errors.Is(cause, api.ErrRegistryClosed):
	default:
		d.fail(op, cause)
	}
}

// execute invokes one claimed envelope. The caller has already counted it in
// running. A panic is logged and counted, and the worker carries on.
func (p *ThreadPool) execute(logger log.Logger, env *envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.stats.panicked.Inc()
			p.metrics.TaskPanics.Inc()
			level.Error(logger).Log("msg", "task panicked", "task", env.name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		p.metrics.TaskDuration.Observe(time.Since(start).Seconds())
		p.metrics.TasksExecuted.Inc()
		p.stats.executed.Inc()
		env.release()
		p.running.Dec()
	}()
	env.invoke()
}
