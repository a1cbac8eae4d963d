// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread runs a body on a dedicated, optionally pinned, OS thread.

package concurrency

import (
	"errors"
	"runtime"

	"github.com/momentics/hioload-taskpool/affinity"
	"github.com/momentics/hioload-taskpool/api"
	"go.uber.org/atomic"
)

var ErrThreadStarted = errors.New("thread already started")

// Thread is a goroutine locked to its own OS thread. The goroutine returns
// while still locked, so the runtime destroys the OS thread once the body is
// done instead of handing it to other goroutines.
type Thread struct {
	id   int
	cpu  int
	body func()

	tid     atomic.Int32
	started atomic.Bool
	ready   chan error
	done    chan struct{}
}

// NewThread prepares a thread; cpu is api.NoCPU or a logical CPU to pin to.
func NewThread(id, cpu int, body func()) (*Thread, error) {
	if body == nil {
		return nil, errors.New("thread body is nil")
	}
	if cpu != api.NoCPU {
		if err := affinity.ValidCPU(cpu); err != nil {
			return nil, err
		}
	}
	return &Thread{
		id:    id,
		cpu:   cpu,
		body:  body,
		ready: make(chan error, 1),
		done:  make(chan struct{}),
	}, nil
}

// Start launches the thread and waits until it is running its body or has
// failed to pin itself.
func (t *Thread) Start() error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrThreadStarted
	}
	go t.run()
	return <-t.ready
}

func (t *Thread) run() {
	runtime.LockOSThread()
	defer close(t.done)

	if t.cpu != api.NoCPU {
		if err := affinity.SetAffinity(t.cpu); err != nil {
			t.ready <- err
			return
		}
	}
	t.tid.Store(int32(CurrentTID()))
	t.ready <- nil
	t.body()
}

// Join blocks until the body has returned. It returns at once for a thread
// that was never started.
func (t *Thread) Join() {
	if !t.started.Load() {
		return
	}
	<-t.done
}

// ID returns the pool-local index of the thread.
func (t *Thread) ID() int { return t.id }

// CPU returns the CPU the thread is pinned to, or api.NoCPU.
func (t *Thread) CPU() int { return t.cpu }

// TID returns the kernel thread id once started, 0 before.
func (t *Thread) TID() int { return int(t.tid.Load()) }
