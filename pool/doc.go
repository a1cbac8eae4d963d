// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-size pool of worker OS threads fed through same-process Unix-domain
// socket connections.
//
// Every submitting OS thread owns one persistent task channel, connected
// lazily to the pool's rendezvous socket on its first AddTask. Workers share
// a single one-shot epoll registry: a ready listener yields a new channel, a
// ready channel yields 8-byte tickets. A ticket names an envelope parked in a
// process-local table; the worker that claims the ticket runs the envelope
// and is the only one that can. Raw pointers never travel over the socket.
//
// A panic inside a task is recovered, logged and counted; the worker keeps
// serving.
package pool
