// Package api
// Author: momentics
//
// Executor contract for asynchronous task dispatch.

package api

// Task is a unit of work bound with everything it needs to run.
type Task interface {
	Invoke()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

// Invoke calls f.
func (f TaskFunc) Invoke() { f() }

// Executor abstracts a fixed-size pool of worker threads.
type Executor interface {
	// Start launches count workers.
	Start(count int) error

	// Close stops the workers and releases every resource. Safe to call twice.
	Close() error

	// AddTask binds fn to args and schedules it on some worker.
	AddTask(fn any, args ...any) error

	// Submit schedules task for execution.
	Submit(task func()) error

	// Size returns the number of worker threads.
	Size() int
}
