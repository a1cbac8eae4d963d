// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness registry shared by the dispatch loops
// of a task pool. The Linux implementation is built on epoll with one-shot
// registrations, so a ready descriptor is handed to exactly one waiter.
package reactor
