// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// objectPool recycles values of one type through a sync.Pool. Values are
// reset on Put, so nothing a released value referenced is kept alive by
// the pool.
type objectPool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

func newObjectPool[T any](create func() T, reset func(T)) *objectPool[T] {
	op := &objectPool[T]{reset: reset}
	op.pool.New = func() any { return create() }
	return op
}

func (op *objectPool[T]) get() T {
	return op.pool.Get().(T)
}

func (op *objectPool[T]) put(v T) {
	if op.reset != nil {
		op.reset(v)
	}
	op.pool.Put(v)
}
