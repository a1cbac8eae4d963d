// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Same-process rendezvous over Unix-domain stream sockets. Descriptors are
// raw and owned by this package so they can be registered with the pool's own
// epoll instance instead of the Go runtime poller.

package transport
