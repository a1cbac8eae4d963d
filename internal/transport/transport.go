// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent pieces of the local socket transport.

package transport

import (
	"errors"

	"go.uber.org/atomic"
)

// DefaultBacklog is the listen backlog used when none is configured.
const DefaultBacklog = 128

// ErrConnClosed is returned by operations on a closed connection.
var ErrConnClosed = errors.New("transport: connection closed")

// fdHolder owns a descriptor and hands it out until closed.
type fdHolder struct {
	fd atomic.Int64
}

func newFDHolder(fd int) fdHolder {
	var h fdHolder
	h.fd.Store(int64(fd))
	return h
}

func (h *fdHolder) get() (int, bool) {
	fd := int(h.fd.Load())
	return fd, fd >= 0
}

// take detaches the descriptor; only the first caller gets it.
func (h *fdHolder) take() (int, bool) {
	fd := int(h.fd.Swap(-1))
	return fd, fd >= 0
}
