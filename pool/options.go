// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"os"

	"github.com/go-kit/log"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/momentics/hioload-taskpool/control"
	"github.com/momentics/hioload-taskpool/internal/transport"
	"github.com/momentics/hioload-taskpool/reactor"
	"github.com/prometheus/client_golang/prometheus"
)

// RegistryFactory creates the readiness registry shared by the workers.
// capacity is a sizing hint: the worker count.
type RegistryFactory func(capacity int) (api.Registry, error)

// Option configures a ThreadPool.
type Option func(*options)

type options struct {
	name        string
	logger      log.Logger
	registerer  prometheus.Registerer
	endpoint    string
	endpointDir string
	cpus        control.CPUList
	eventBatch  int
	recvBuffer  int
	backlog     int
	newRegistry RegistryFactory
}

func defaultOptions() options {
	return options{
		logger:      log.NewNopLogger(),
		endpointDir: os.TempDir(),
		eventBatch:  1,
		recvBuffer:  512,
		backlog:     transport.DefaultBacklog,
		newRegistry: reactor.NewRegistry,
	}
}

// WithName sets the pool name used in logs and as the "pool" metric label.
// Defaults to the generated pool ID.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegisterer exports the pool metrics to reg. Without it the metrics are
// kept but not registered anywhere.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithEndpoint sets an explicit rendezvous socket path.
func WithEndpoint(path string) Option {
	return func(o *options) { o.endpoint = path }
}

// WithEndpointDir sets the directory a generated socket path is placed in.
// An empty dir together with no explicit endpoint leaves the pool without
// an endpoint, and Start fails.
func WithEndpointDir(dir string) Option {
	return func(o *options) { o.endpointDir = dir }
}

// WithCPUs pins worker i to cpus[i % len(cpus)].
func WithCPUs(cpus ...int) Option {
	return func(o *options) { o.cpus = append(control.CPUList(nil), cpus...) }
}

// WithEventBatch sets how many readiness events a worker takes per wait.
func WithEventBatch(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventBatch = n
		}
	}
}

// WithRecvBuffer sets how many bytes a worker reads from a channel per
// wakeup. Values below one ticket are raised to one ticket.
func WithRecvBuffer(n int) Option {
	return func(o *options) {
		if n < ticketSize {
			n = ticketSize
		}
		o.recvBuffer = n
	}
}

// WithBacklog sets the listen backlog of the rendezvous socket.
func WithBacklog(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.backlog = n
		}
	}
}

// WithRegistryFactory replaces the epoll registry constructor.
func WithRegistryFactory(f RegistryFactory) Option {
	return func(o *options) {
		if f != nil {
			o.newRegistry = f
		}
	}
}

// WithConfig applies every pool setting in cfg. Workers and DrainTimeout
// are used by the caller, not the pool.
func WithConfig(cfg control.Config) Option {
	return func(o *options) {
		o.endpoint = cfg.EndpointPath
		o.endpointDir = cfg.EndpointDir
		WithCPUs(cfg.CPUs...)(o)
		WithEventBatch(cfg.EventBatch)(o)
		WithRecvBuffer(cfg.RecvBuffer)(o)
		WithBacklog(cfg.ListenBacklog)(o)
	}
}
