//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/hioload-taskpool/api"

// NewRegistry returns an error for unsupported platforms.
func NewRegistry(capacity int) (api.Registry, error) {
	return nil, api.ErrNotSupported
}
