// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral registration table behind the readiness registry.

package reactor

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-taskpool/api"
)

// slot is one registration. gen is bumped every time the slot is released so
// that tags minted for an older registration stop resolving.
type slot struct {
	fd    int
	kind  api.Kind
	value any
	gen   uint32
	live  bool
}

// slotTable maps tags to registrations. Released slots are recycled in FIFO
// order, which keeps the gap between two uses of the same index as wide as
// possible.
type slotTable struct {
	mu    sync.RWMutex
	slots []slot
	free  *queue.Queue // of uint32
	live  int
}

func newSlotTable(capacity int) *slotTable {
	if capacity < 1 {
		capacity = 1
	}
	return &slotTable{
		slots: make([]slot, 0, capacity+1),
		free:  queue.New(),
	}
}

func makeTag(idx, gen uint32) api.Tag {
	return api.Tag(uint64(gen)<<32 | uint64(idx))
}

func splitTag(tag api.Tag) (idx, gen uint32) {
	return uint32(tag), uint32(uint64(tag) >> 32)
}

// insert stores a new registration and returns its tag.
func (t *slotTable) insert(fd int, kind api.Kind, value any) api.Tag {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if t.free.Length() > 0 {
		idx = t.free.Remove().(uint32)
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	s := &t.slots[idx]
	s.fd, s.kind, s.value, s.live = fd, kind, value, true
	t.live++
	return makeTag(idx, s.gen)
}

// lookup resolves a tag to a copy of its live registration.
func (t *slotTable) lookup(tag api.Tag) (slot, bool) {
	idx, gen := splitTag(tag)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(idx) >= len(t.slots) {
		return slot{}, false
	}
	s := t.slots[idx]
	if !s.live || s.gen != gen {
		return slot{}, false
	}
	return s, true
}

// release drops the registration named by tag and returns it.
func (t *slotTable) release(tag api.Tag) (slot, bool) {
	idx, gen := splitTag(tag)
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(idx) >= len(t.slots) {
		return slot{}, false
	}
	s := &t.slots[idx]
	if !s.live || s.gen != gen {
		return slot{}, false
	}
	out := *s
	*s = slot{gen: s.gen + 1}
	t.live--
	t.free.Add(idx)
	return out, true
}

func (t *slotTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}
