//go:build linux

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newTestRegistry(t *testing.T) api.Registry {
	t.Helper()
	r, err := NewRegistry(4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_WaitReturnsTaggedEvent(t *testing.T) {
	r := newTestRegistry(t)
	local, peer := socketPair(t)

	tag, err := r.Add(local, api.KindChannel, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	_, err = unix.Write(peer, []byte{1})
	require.NoError(t, err)

	events := make([]api.Event, 4)
	n, err := r.Wait(events)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, tag, events[0].Tag)
	assert.Equal(t, api.KindChannel, events[0].Kind)
	assert.Equal(t, "chan-1", events[0].Value)
	assert.False(t, events[0].Hangup)
}

func TestRegistry_OneShotUntilRearm(t *testing.T) {
	r := newTestRegistry(t)
	local, peer := socketPair(t)

	tag, err := r.Add(local, api.KindChannel, nil)
	require.NoError(t, err)
	_, err = unix.Write(peer, []byte{1})
	require.NoError(t, err)

	events := make([]api.Event, 1)
	n, err := r.Wait(events)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The byte is still unread, but the registration is disarmed: a second
	// waiter must not see it again.
	second := make(chan error, 1)
	go func() {
		_, err := r.Wait(make([]api.Event, 1))
		second <- err
	}()
	select {
	case err := <-second:
		t.Fatalf("event delivered twice, wait returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, r.Rearm(tag))
	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("rearmed registration was not delivered")
	}
}

func TestRegistry_RemoveInvalidatesTag(t *testing.T) {
	r := newTestRegistry(t)
	local, _ := socketPair(t)

	tag, err := r.Add(local, api.KindChannel, nil)
	require.NoError(t, err)
	require.NoError(t, r.Remove(tag))
	assert.Equal(t, 0, r.Len())

	assert.Error(t, r.Rearm(tag))
	assert.Error(t, r.Remove(tag))

	again, err := r.Add(local, api.KindChannel, nil)
	require.NoError(t, err)
	assert.NotEqual(t, tag, again)
}

func TestRegistry_HangupReported(t *testing.T) {
	r := newTestRegistry(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])

	_, err = r.Add(fds[0], api.KindChannel, nil)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))

	events := make([]api.Event, 1)
	n, err := r.Wait(events)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.True(t, events[0].Hangup)
}

func TestRegistry_ShutdownWakesAllWaiters(t *testing.T) {
	r, err := NewRegistry(4)
	require.NoError(t, err)

	const waiters = 4
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Wait(make([]api.Event, 1))
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Shutdown())
	require.NoError(t, r.Shutdown(), "shutdown is idempotent")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiters were not woken by shutdown")
	}
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, api.ErrRegistryClosed)
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Add(0, api.KindChannel, nil)
	assert.ErrorIs(t, err, api.ErrRegistryClosed)
}

func TestRegistry_EmptyEventBuffer(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Wait(nil)
	assert.Error(t, err)
}
