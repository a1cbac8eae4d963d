// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Both ends of a task channel: the submitting thread's connected socket and
// the worker-side accepted socket.

package pool

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-taskpool/internal/transport"
)

var errChannelsClosed = errors.New("task channels closed")

// clientChannel is the submitting end owned by one OS thread.
type clientChannel struct {
	tid int

	mu   sync.Mutex
	conn *transport.Conn
	buf  [ticketSize]byte
}

func (c *clientChannel) send(ticket uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.ErrConnClosed
	}
	encodeTicket(c.buf[:], ticket)
	return c.conn.Send(c.buf[:])
}

// trySend is send for submitters that must not block, such as workers
// feeding their own pool. It returns api.ErrWouldBlock on a full channel.
func (c *clientChannel) trySend(ticket uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return transport.ErrConnClosed
	}
	encodeTicket(c.buf[:], ticket)
	return c.conn.TrySend(c.buf[:])
}

func (c *clientChannel) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// channelTable maps OS thread ids to their client channels.
type channelTable struct {
	mu       sync.Mutex
	byThread map[int]*clientChannel
	closed   bool
}

func newChannelTable() *channelTable {
	return &channelTable{byThread: make(map[int]*clientChannel)}
}

func (t *channelTable) get(tid int) *clientChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byThread[tid]
}

// insert stores c unless the table is closed or the thread already has a
// channel, in which case the existing one is returned with stored false.
func (t *channelTable) insert(c *clientChannel) (*clientChannel, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, errChannelsClosed
	}
	if cur, ok := t.byThread[c.tid]; ok {
		return cur, false, nil
	}
	t.byThread[c.tid] = c
	return c, true, nil
}

// evict drops c from the table and closes it.
func (t *channelTable) evict(c *clientChannel) {
	t.mu.Lock()
	if t.byThread[c.tid] == c {
		delete(t.byThread, c.tid)
	}
	t.mu.Unlock()
	_ = c.close()
}

// closeAll closes every channel and refuses further inserts.
func (t *channelTable) closeAll() int {
	t.mu.Lock()
	chans := t.byThread
	t.byThread = make(map[int]*clientChannel)
	t.closed = true
	t.mu.Unlock()

	for _, c := range chans {
		_ = c.close()
	}
	return len(chans)
}

// reap closes the channels of threads that no longer exist and returns how
// many it dropped. alive is consulted outside the table lock.
func (t *channelTable) reap(alive func(tid int) bool) int {
	t.mu.Lock()
	chans := make([]*clientChannel, 0, len(t.byThread))
	for _, c := range t.byThread {
		chans = append(chans, c)
	}
	t.mu.Unlock()

	n := 0
	for _, c := range chans {
		if alive(c.tid) {
			continue
		}
		t.evict(c)
		n++
	}
	return n
}

func (t *channelTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byThread)
}

// serverChannel is the accepted end of a task channel, registered with the
// readiness registry. One-shot registration means a single worker reads it
// at a time; mu covers the partial ticket carried between reads.
type serverChannel struct {
	conn *transport.Conn

	mu      sync.Mutex
	partial []byte
}

// decode appends every complete ticket in b to out and keeps the remainder
// for the next read.
func (s *serverChannel) decode(b []byte, out []uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.partial) > 0 {
		need := ticketSize - len(s.partial)
		if len(b) < need {
			s.partial = append(s.partial, b...)
			return out
		}
		s.partial = append(s.partial, b[:need]...)
		out = append(out, decodeTicket(s.partial))
		s.partial = s.partial[:0]
		b = b[need:]
	}
	for len(b) >= ticketSize {
		out = append(out, decodeTicket(b))
		b = b[ticketSize:]
	}
	s.partial = append(s.partial, b...)
	return out
}

// channelSet tracks accepted channels so Close can release them.
type channelSet struct {
	mu  sync.Mutex
	set map[*serverChannel]struct{}
}

func newChannelSet() *channelSet {
	return &channelSet{set: make(map[*serverChannel]struct{})}
}

func (s *channelSet) add(c *serverChannel) {
	s.mu.Lock()
	s.set[c] = struct{}{}
	s.mu.Unlock()
}

func (s *channelSet) remove(c *serverChannel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[c]; !ok {
		return false
	}
	delete(s.set, c)
	return true
}

// shutdownAll shuts both directions of every tracked channel while keeping
// the descriptors open, so submitters blocked in send fail right away.
func (s *channelSet) shutdownAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.set {
		_ = c.conn.Shutdown()
	}
}

// closeAll closes and forgets every tracked channel.
func (s *channelSet) closeAll() int {
	s.mu.Lock()
	set := s.set
	s.set = make(map[*serverChannel]struct{})
	s.mu.Unlock()

	for c := range set {
		_ = c.conn.Close()
	}
	return len(set)
}

func (s *channelSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
