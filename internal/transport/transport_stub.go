//go:build !linux
// +build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub transport for unsupported platforms.

package transport

import "github.com/momentics/hioload-taskpool/api"

type Listener struct {
	fdHolder
	path string
}

func Listen(path string, backlog int) (*Listener, error) { return nil, api.ErrNotSupported }
func (l *Listener) Fd() int                              { return -1 }
func (l *Listener) Path() string                         { return l.path }
func (l *Listener) Accept() (*Conn, error)               { return nil, api.ErrNotSupported }
func (l *Listener) Close() error                         { return nil }

type Conn struct {
	fdHolder
}

func NewConn() (*Conn, error)               { return nil, api.ErrNotSupported }
func Dial(path string) (*Conn, error)       { return nil, api.ErrNotSupported }
func (c *Conn) Connect(path string) error   { return api.ErrNotSupported }
func (c *Conn) Fd() int                     { return -1 }
func (c *Conn) Send(b []byte) error         { return api.ErrNotSupported }
func (c *Conn) TrySend(b []byte) error      { return api.ErrNotSupported }
func (c *Conn) Shutdown() error             { return api.ErrNotSupported }
func (c *Conn) Recv(b []byte) (int, error)  { return 0, api.ErrNotSupported }
func (c *Conn) Close() error                { return nil }
