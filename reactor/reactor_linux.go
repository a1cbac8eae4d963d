//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based readiness registry and factory.

package reactor

import (
	"encoding/binary"
	"sync"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

const (
	// Registrations fire once and stay disabled until rearmed.
	readEvents = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT

	// Data word of the wake eventfd; slot indexes never reach it.
	wakeMarker = -1
)

// linuxRegistry is an epoll-based registry. The tag of each registration is
// stored in the epoll data word (slot index in Fd, generation in Pad).
type linuxRegistry struct {
	epfd   int
	wakefd int
	table  *slotTable

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewRegistry constructs the epoll registry. capacity sizes the registration
// table; it is a hint, the table grows as needed.
func NewRegistry(capacity int) (api.Registry, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "eventfd create")
	}
	// The wake source is level-triggered and never drained, so once signalled
	// every waiter, current or future, observes it.
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: wakeMarker, Pad: wakeMarker}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "epoll ctl add wake")
	}
	return &linuxRegistry{
		epfd:   epfd,
		wakefd: wakefd,
		table:  newSlotTable(capacity),
	}, nil
}

func epollEvent(tag api.Tag) *unix.EpollEvent {
	idx, gen := splitTag(tag)
	return &unix.EpollEvent{
		Events: readEvents,
		Fd:     int32(idx),
		Pad:    int32(gen),
	}
}

// Add registers fd for one-shot read readiness.
func (r *linuxRegistry) Add(fd int, kind api.Kind, value any) (api.Tag, error) {
	if r.closed.Load() {
		return 0, api.ErrRegistryClosed
	}
	tag := r.table.insert(fd, kind, value)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, epollEvent(tag)); err != nil {
		r.table.release(tag)
		return 0, errors.Wrapf(err, "epoll ctl add fd %d", fd)
	}
	return tag, nil
}

// Rearm re-enables a one-shot registration.
func (r *linuxRegistry) Rearm(tag api.Tag) error {
	s, ok := r.table.lookup(tag)
	if !ok {
		return errors.Errorf("rearm: unknown tag %#x", uint64(tag))
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, s.fd, epollEvent(tag)); err != nil {
		return errors.Wrapf(err, "epoll ctl mod fd %d", s.fd)
	}
	return nil
}

// Remove deregisters tag. Events already fetched for it by another waiter are
// dropped by Wait because the slot generation no longer matches.
func (r *linuxRegistry) Remove(tag api.Tag) error {
	s, ok := r.table.lookup(tag)
	if !ok {
		return errors.Errorf("remove: unknown tag %#x", uint64(tag))
	}
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, s.fd, nil)
	r.table.release(tag)
	if err != nil {
		return errors.Wrapf(err, "epoll ctl del fd %d", s.fd)
	}
	return nil
}

// Wait blocks until some registration is ready. It never returns zero events
// without an error.
func (r *linuxRegistry) Wait(events []api.Event) (int, error) {
	if len(events) == 0 {
		return 0, errors.New("reactor: empty event buffer")
	}
	raw := make([]unix.EpollEvent, len(events))
	for {
		if r.closed.Load() {
			return 0, api.ErrRegistryClosed
		}
		n, err := unix.EpollWait(r.epfd, raw, -1)
		if err != nil {
			if err == unix.EINTR {
				continue // interrupted by signal, normal
			}
			if r.closed.Load() {
				return 0, api.ErrRegistryClosed
			}
			return 0, errors.Wrap(err, "epoll wait")
		}
		out := 0
		for i := 0; i < n; i++ {
			ev := raw[i]
			if ev.Fd == wakeMarker {
				continue
			}
			tag := makeTag(uint32(ev.Fd), uint32(ev.Pad))
			s, ok := r.table.lookup(tag)
			if !ok {
				continue
			}
			events[out] = api.Event{
				Tag:    tag,
				Kind:   s.kind,
				Value:  s.value,
				Hangup: ev.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
			}
			out++
		}
		if out > 0 {
			return out, nil
		}
	}
}

// Len returns the number of live registrations.
func (r *linuxRegistry) Len() int {
	return r.table.len()
}

// Shutdown marks the registry closed and wakes all waiters.
func (r *linuxRegistry) Shutdown() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(r.wakefd, buf[:]); err != nil {
		return errors.Wrap(err, "eventfd write")
	}
	return nil
}

// Close releases the epoll instance. Waiters must have returned already;
// call Shutdown first when they may not have.
func (r *linuxRegistry) Close() error {
	r.closeOnce.Do(func() {
		_ = r.Shutdown()
		werr := unix.Close(r.wakefd)
		eerr := unix.Close(r.epfd)
		switch {
		case eerr != nil:
			r.closeErr = errors.Wrap(eerr, "close epoll")
		case werr != nil:
			r.closeErr = errors.Wrap(werr, "close eventfd")
		}
	})
	return r.closeErr
}
