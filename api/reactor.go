// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the readiness registry shared by every dispatch loop of a pool.

package api

// Kind tells a dispatch loop what a ready connection is.
type Kind uint8

const (
	KindListener Kind = iota + 1
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindListener:
		return "listener"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Tag identifies one registration. A tag is never handed out again while the
// registration it names is alive.
type Tag uint64

// Event is a readiness notification returned by Registry.Wait.
type Event struct {
	Tag    Tag
	Kind   Kind
	Value  any  // value passed to Add
	Hangup bool // peer closed or error condition reported
}

// Registry multiplexes readiness of many descriptors across many waiters.
//
// Registrations are one-shot: once an event for a descriptor is returned by
// Wait, no other waiter sees that descriptor until Rearm is called. All methods
// are safe for concurrent use.
type Registry interface {
	// Add registers fd for read readiness.
	Add(fd int, kind Kind, value any) (Tag, error)

	// Rearm re-enables notifications for tag after its event was handled.
	Rearm(tag Tag) error

	// Remove deregisters tag. The caller still owns the descriptor.
	Remove(tag Tag) error

	// Wait blocks until at least one registration is ready and fills events.
	// It returns ErrRegistryClosed once Shutdown has been called.
	Wait(events []Event) (int, error)

	// Len returns the number of live registrations.
	Len() int

	// Shutdown wakes every waiter and makes further waits fail.
	Shutdown() error

	// Close releases the underlying OS resources.
	Close() error
}
