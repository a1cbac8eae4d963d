//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

// CurrentTID is not available on this platform.
func CurrentTID() int {
	return -1
}

// ThreadAlive always reports true where threads cannot be inspected.
func ThreadAlive(tid int) bool {
	return true
}
