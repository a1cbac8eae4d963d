// Package fake
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Fault-injecting registry for pool tests.

package fake

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/reactor"
)

// ErrInjected is returned by every injected failure.
var ErrInjected = errors.New("fake: injected failure")

// Registry wraps a real registry and fails selected calls on demand.
type Registry struct {
	api.Registry

	mu        sync.Mutex
	addFails  map[api.Kind]int
	rearmFail int
	waitFail  int
	adds      map[api.Kind]int
}

// Wrap returns a Registry that passes every call through to r until told
// otherwise.
func Wrap(r api.Registry) *Registry {
	return &Registry{
		Registry: r,
		addFails: make(map[api.Kind]int),
		adds:     make(map[api.Kind]int),
	}
}

// FailAdds makes the next n Add calls for kind fail. A negative n fails
// them all.
func (f *Registry) FailAdds(kind api.Kind, n int) {
	f.mu.Lock()
	f.addFails[kind] = n
	f.mu.Unlock()
}

// FailRearms makes the next n Rearm calls fail.
func (f *Registry) FailRearms(n int) {
	f.mu.Lock()
	f.rearmFail = n
	f.mu.Unlock()
}

// FailWaits makes the next n Wait calls fail without blocking.
func (f *Registry) FailWaits(n int) {
	f.mu.Lock()
	f.waitFail = n
	f.mu.Unlock()
}

// Adds returns how many Add calls for kind were attempted.
func (f *Registry) Adds(kind api.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adds[kind]
}

func take(n *int) bool {
	switch {
	case *n < 0:
		return true
	case *n > 0:
		*n--
		return true
	}
	return false
}

// Add implements api.Registry.
func (f *Registry) Add(fd int, kind api.Kind, value any) (api.Tag, error) {
	f.mu.Lock()
	f.adds[kind]++
	n := f.addFails[kind]
	fail := take(&n)
	f.addFails[kind] = n
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.Registry.Add(fd, kind, value)
}

// Rearm implements api.Registry.
func (f *Registry) Rearm(tag api.Tag) error {
	f.mu.Lock()
	fail := take(&f.rearmFail)
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Registry.Rearm(tag)
}

// Wait implements api.Registry.
func (f *Registry) Wait(events []api.Event) (int, error) {
	f.mu.Lock()
	fail := take(&f.waitFail)
	f.mu.Unlock()
	if fail {
		return 0, ErrInjected
	}
	return f.Registry.Wait(events)
}

// Factory returns a registry constructor that wraps the real epoll registry
// and hands the wrapper to ready before returning it.
func Factory(ready func(*Registry)) func(int) (api.Registry, error) {
	return func(capacity int) (api.Registry, error) {
		r, err := reactor.NewRegistry(capacity)
		if err != nil {
			return nil, err
		}
		f := Wrap(r)
		if ready != nil {
			ready(f)
		}
		return f, nil
	}
}

// FailingFactory returns a registry constructor that always fails with err.
func FailingFactory(err error) func(int) (api.Registry, error) {
	if err == nil {
		err = ErrInjected
	}
	return func(int) (api.Registry, error) {
		return nil, err
	}
}
