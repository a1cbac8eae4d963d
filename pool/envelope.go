// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task envelopes and the ticket table that hands them across threads.

package pool

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/momentics/hioload-taskpool/api"
	"go.uber.org/atomic"
)

// ticketSize is the width of one ticket on a task channel.
const ticketSize = 8

// envelope is one submitted task with its arguments already bound.
type envelope struct {
	fn   func()
	name string
}

var envelopes = newObjectPool(
	func() *envelope { return &envelope{} },
	func(e *envelope) { *e = envelope{} },
)

// newEnvelope binds fn to args. fn may be a func(), an api.Task, or any
// function value whose parameters accept args; results are discarded.
func newEnvelope(fn any, args ...any) (*envelope, error) {
	call, name, err := bind(fn, args)
	if err != nil {
		return nil, err
	}
	e := envelopes.get()
	e.fn, e.name = call, name
	return e, nil
}

func (e *envelope) invoke() {
	e.fn()
}

// release returns e to the allocator. e must not be used afterwards.
func (e *envelope) release() {
	envelopes.put(e)
}

func funcName(v reflect.Value) string {
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return v.Type().String()
}

func bind(fn any, args []any) (func(), string, error) {
	switch f := fn.(type) {
	case nil:
		return nil, "", fmt.Errorf("task is nil")
	case func():
		if f == nil {
			return nil, "", fmt.Errorf("task is nil")
		}
		if len(args) == 0 {
			return f, funcName(reflect.ValueOf(f)), nil
		}
	case api.Task:
		if len(args) != 0 {
			return nil, "", fmt.Errorf("%T takes no arguments, got %d", fn, len(args))
		}
		return f.Invoke, fmt.Sprintf("%T", f), nil
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, "", fmt.Errorf("task is not a function: %T", fn)
	}
	if v.IsNil() {
		return nil, "", fmt.Errorf("task is nil")
	}
	in, err := bindArgs(v.Type(), args)
	if err != nil {
		return nil, "", err
	}
	return func() { v.Call(in) }, funcName(v), nil
}

func bindArgs(t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, fmt.Errorf("%s needs at least %d arguments, got %d", t, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, fmt.Errorf("%s needs %d arguments, got %d", t, n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if t.IsVariadic() && i >= n-1 {
			pt = t.In(n - 1).Elem()
		} else {
			pt = t.In(i)
		}
		if a == nil {
			switch pt.Kind() {
			case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map,
				reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
				in[i] = reflect.Zero(pt)
				continue
			}
			return nil, fmt.Errorf("argument %d: nil is not a valid %s", i, pt)
		}
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(pt) {
			return nil, fmt.Errorf("argument %d: %s is not assignable to %s", i, av.Type(), pt)
		}
		in[i] = av
	}
	return in, nil
}

// envelopeTable parks envelopes between submission and execution. A ticket
// is claimed at most once; whoever claims it owns the envelope.
type envelopeTable struct {
	next    atomic.Uint64
	pending atomic.Int64
	m       sync.Map // uint64 -> *envelope
}

func (t *envelopeTable) put(e *envelope) uint64 {
	ticket := t.next.Inc()
	t.pending.Inc()
	t.m.Store(ticket, e)
	return ticket
}

func (t *envelopeTable) claim(ticket uint64) (*envelope, bool) {
	v, ok := t.m.LoadAndDelete(ticket)
	if !ok {
		return nil, false
	}
	t.pending.Dec()
	return v.(*envelope), true
}

// discard claims and releases everything still parked.
func (t *envelopeTable) discard() int {
	n := 0
	t.m.Range(func(k, _ any) bool {
		if e, ok := t.claim(k.(uint64)); ok {
			e.release()
			n++
		}
		return true
	})
	return n
}

func (t *envelopeTable) len() int {
	return int(t.pending.Load())
}

func encodeTicket(b []byte, ticket uint64) {
	binary.LittleEndian.PutUint64(b, ticket)
}

func decodeTicket(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
