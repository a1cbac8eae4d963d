// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux Unix-domain stream sockets on raw descriptors.

package transport

import (
	"io"
	"os"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Listener is a non-blocking listening socket bound to a filesystem path.
type Listener struct {
	fdHolder
	path string
}

// Listen creates, binds and listens on path. An existing file at path is not
// removed: binding fails with EADDRINUSE instead.
func Listen(path string, backlog int) (*Listener, error) {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socket create")
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(err, "bind %s", path)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, errors.Wrapf(err, "listen %s", path)
	}
	return &Listener{fdHolder: newFDHolder(fd), path: path}, nil
}

// Fd returns the listening descriptor, or -1 once closed.
func (l *Listener) Fd() int {
	fd, _ := l.get()
	return fd
}

// Path returns the bound path.
func (l *Listener) Path() string {
	return l.path
}

// Accept takes one pending connection. It returns api.ErrWouldBlock when the
// backlog is empty.
func (l *Listener) Accept() (*Conn, error) {
	fd, ok := l.get()
	if !ok {
		return nil, ErrConnClosed
	}
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return &Conn{fdHolder: newFDHolder(nfd)}, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return nil, api.ErrWouldBlock
		default:
			return nil, errors.Wrap(err, "accept")
		}
	}
}

// Close closes the descriptor and unlinks the bound path.
func (l *Listener) Close() error {
	fd, ok := l.take()
	if !ok {
		return nil
	}
	cerr := unix.Close(fd)
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unlink %s", l.path)
	}
	if cerr != nil {
		return errors.Wrap(cerr, "close listener")
	}
	return nil
}

// Conn is one end of a local stream connection.
type Conn struct {
	fdHolder
}

// NewConn creates an unconnected blocking socket.
func NewConn() (*Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "socket create")
	}
	return &Conn{fdHolder: newFDHolder(fd)}, nil
}

// Dial is NewConn followed by Connect.
func Dial(path string) (*Conn, error) {
	c, err := NewConn()
	if err != nil {
		return nil, err
	}
	if err := c.Connect(path); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Connect links the socket to the listener at path.
func (c *Conn) Connect(path string) error {
	fd, ok := c.get()
	if !ok {
		return ErrConnClosed
	}
	for {
		err := unix.Connect(fd, &unix.SockaddrUnix{Name: path})
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "connect %s", path)
		}
		return nil
	}
}

// Fd returns the descriptor, or -1 once closed.
func (c *Conn) Fd() int {
	fd, _ := c.get()
	return fd
}

// Send writes all of b. Writes to a peer that went away fail with EPIPE
// instead of raising SIGPIPE.
func (c *Conn) Send(b []byte) error {
	fd, ok := c.get()
	if !ok {
		return ErrConnClosed
	}
	for len(b) > 0 {
		n, err := unix.SendmsgN(fd, b, nil, nil, unix.MSG_NOSIGNAL)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "send")
		}
		b = b[n:]
	}
	return nil
}

// TrySend is Send that never blocks on a full socket buffer. It returns
// api.ErrWouldBlock when nothing could be written. Once part of b is out the
// rest is written blocking, so a frame is never left half sent.
func (c *Conn) TrySend(b []byte) error {
	fd, ok := c.get()
	if !ok {
		return ErrConnClosed
	}
	for {
		n, err := unix.SendmsgN(fd, b, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return api.ErrWouldBlock
		case err != nil:
			return errors.Wrap(err, "send")
		case n < len(b):
			return c.Send(b[n:])
		}
		return nil
	}
}

// Shutdown disables both directions without releasing the descriptor. A
// peer blocked in send wakes up with EPIPE. Data already queued can still
// be read.
func (c *Conn) Shutdown() error {
	fd, ok := c.get()
	if !ok {
		return ErrConnClosed
	}
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil && err != unix.ENOTCONN {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Recv reads whatever is available into b. It returns io.EOF when the peer
// closed and api.ErrWouldBlock on an empty non-blocking socket.
func (c *Conn) Recv(b []byte) (int, error) {
	fd, ok := c.get()
	if !ok {
		return 0, ErrConnClosed
	}
	for {
		n, err := unix.Read(fd, b)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, api.ErrWouldBlock
		case err != nil:
			return 0, errors.Wrap(err, "recv")
		case n == 0 && len(b) > 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Close releases the descriptor. Safe to call more than once.
func (c *Conn) Close() error {
	fd, ok := c.take()
	if !ok {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		return errors.Wrap(err, "close conn")
	}
	return nil
}
