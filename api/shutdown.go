// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown is implemented by components that can drain in-flight work
// before releasing their resources.
type GracefulShutdown interface {
	// Shutdown waits for queued work until ctx is done, then closes.
	Shutdown(ctx context.Context) error
}
