// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Pool configuration: flags, YAML file loading and validation.

package control

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	dslog "github.com/grafana/dskit/log"
	"github.com/momentics/hioload-taskpool/affinity"
	"github.com/momentics/hioload-taskpool/api"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// maxSocketPath is the usable length of sockaddr_un.sun_path on Linux.
const maxSocketPath = 107

// Config holds the parameters of one task pool. Worker count is fixed once
// the pool has started.
type Config struct {
	Workers       int           `yaml:"workers"`
	EndpointDir   string        `yaml:"endpoint_dir"`
	EndpointPath  string        `yaml:"endpoint_path"`
	CPUs          CPUList       `yaml:"cpus"`
	EventBatch    int           `yaml:"event_batch"`
	RecvBuffer    int           `yaml:"recv_buffer"`
	ListenBacklog int           `yaml:"listen_backlog"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	LogLevel      dslog.Level   `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
}

// RegisterFlags registers the config flags and sets their defaults on c.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.IntVar(&c.Workers, "pool.workers", runtime.NumCPU(), "Number of worker threads.")
	f.StringVar(&c.EndpointDir, "pool.endpoint-dir", os.TempDir(), "Directory the listening socket is created in.")
	f.StringVar(&c.EndpointPath, "pool.endpoint-path", "", "Explicit listening socket path. Generated from the current time when empty.")
	f.Var(&c.CPUs, "pool.cpus", "Comma-separated CPUs to pin workers to, assigned round-robin. Empty disables pinning.")
	f.IntVar(&c.EventBatch, "pool.event-batch", 1, "Readiness events fetched per wait by each worker.")
	f.IntVar(&c.RecvBuffer, "pool.recv-buffer", 512, "Bytes read from a task channel per wakeup.")
	f.IntVar(&c.ListenBacklog, "pool.listen-backlog", 128, "Listen backlog of the rendezvous socket.")
	f.DurationVar(&c.DrainTimeout, "pool.drain-timeout", 5*time.Second, "How long shutdown waits for submitted tasks to run.")
	_ = c.LogLevel.Set("info")
	f.Var(&c.LogLevel, "log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]")
	f.StringVar(&c.LogFormat, "log.format", dslog.LogfmtFormat, "Output log messages in the given format. Valid formats: [logfmt, json]")
}

// DefaultConfig returns a Config holding the flag defaults.
func DefaultConfig() Config {
	var c Config
	c.RegisterFlags(flag.NewFlagSet("defaults", flag.ContinueOnError))
	return c
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("invalid workers %d: must be positive", c.Workers)
	}
	if c.EndpointPath == "" && c.EndpointDir == "" {
		return errors.New("one of endpoint_path or endpoint_dir must be set")
	}
	if len(c.EndpointPath) > maxSocketPath {
		return fmt.Errorf("endpoint_path longer than %d bytes", maxSocketPath)
	}
	for _, cpu := range c.CPUs {
		if err := affinity.ValidCPU(cpu); err != nil {
			return err
		}
	}
	if c.EventBatch < 1 {
		return fmt.Errorf("invalid event_batch %d: must be at least 1", c.EventBatch)
	}
	if c.RecvBuffer < 8 {
		return fmt.Errorf("invalid recv_buffer %d: must hold at least one ticket", c.RecvBuffer)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("invalid drain_timeout %s", c.DrainTimeout)
	}
	if c.LogLevel.Option == nil {
		return errors.New("log_level is not set")
	}
	if c.LogFormat != dslog.LogfmtFormat && c.LogFormat != dslog.JSONFormat {
		return fmt.Errorf("unrecognized log format %q", c.LogFormat)
	}
	return nil
}

// LoadConfig reads a YAML file over the values already in cfg. Unknown keys
// are rejected. With expandEnv, ${VAR} references are substituted first.
func LoadConfig(path string, expandEnv bool, cfg *Config) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config file")
	}
	if expandEnv {
		buf = []byte(os.ExpandEnv(string(buf)))
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	return nil
}

// CPUList is a list of logical CPUs, given on the command line as CSV.
type CPUList []int

// String implements flag.Value.
func (l *CPUList) String() string {
	parts := make([]string, len(*l))
	for i, cpu := range *l {
		parts[i] = strconv.Itoa(cpu)
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.
func (l *CPUList) Set(s string) error {
	if s == "" {
		*l = nil
		return nil
	}
	var out CPUList
	for _, part := range strings.Split(s, ",") {
		cpu, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return errors.Wrapf(err, "cpu %q", part)
		}
		out = append(out, cpu)
	}
	*l = out
	return nil
}

// Assign returns the CPU for worker i, or api.NoCPU when pinning is
// disabled.
func (l CPUList) Assign(i int) int {
	if len(l) == 0 {
		return api.NoCPU
	}
	return l[i%len(l)]
}
