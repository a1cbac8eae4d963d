// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Probe registry used to export pool internals for inspection.

package control

import (
	"sort"
	"strings"
	"sync"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook, replacing any previous one.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// UnregisterPrefix drops every probe whose name starts with prefix.
func (dp *DebugProbes) UnregisterPrefix(prefix string) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	for name := range dp.probes {
		if strings.HasPrefix(name, prefix) {
			delete(dp.probes, name)
		}
	}
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make([]string, 0, len(dp.probes))
	for name := range dp.probes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DumpState returns output of all probes. Probes run outside the lock so a
// probe may itself consult the registry.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	fns := make(map[string]func() any, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	dp.mu.RUnlock()

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}
