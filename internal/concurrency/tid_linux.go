//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// CurrentTID returns the kernel id of the calling OS thread. It is only stable
// while the calling goroutine is locked to its thread.
func CurrentTID() int {
	return unix.Gettid()
}

// ThreadAlive reports whether tid names a live thread of this process.
func ThreadAlive(tid int) bool {
	var st unix.Stat_t
	return unix.Stat("/proc/self/task/"+strconv.Itoa(tid), &st) == nil
}
