// Package health runs the daemon's background reconciliation sweep:
// periodically restart any auto-started server that has fallen out of
// the registry (evicted after a crash, or stopped), without ever
// touching on-demand servers. A server whose first start at boot failed
// was never recorded as auto-started, so the sweep does not retry it.
//
// Grounded on mcp-scooter's DiscoveryEngine.monitor ticker loop
// (internal/domain/discovery/discovery.go), generalized from its
// inactivity-based auto-unload sweep into a restart sweep, and kept to
// the spec.md §9 note that the monitor observes only registry
// membership, never a child's OS handle directly, avoiding a TOCTOU
// race against concurrent eviction.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/initializer"
	"github.com/mcp-scooter/mcpgate/internal/logger"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 30 * time.Second

// ConfigLookup resolves an auto-started id back to the ServerSpec it
// was configured with, so the monitor can rebuild its command line.
type ConfigLookup func(id string) (registry.ServerSpec, bool)

// Monitor periodically restarts missing auto-started servers.
type Monitor struct {
	reg      *registry.Registry
	lookup   ConfigLookup
	interval time.Duration
}

// New creates a monitor. interval <= 0 uses DefaultInterval.
func New(reg *registry.Registry, lookup ConfigLookup, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{reg: reg, lookup: lookup, interval: interval}
}

// Run sweeps every m.interval until ctx is canceled. Intended to be
// started iff at least one auto-started server exists; a no-op
// registry is harmless but wasteful.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	for _, id := range m.reg.AutoStartedIDs() {
		if m.reg.IsRunning(id) {
			continue
		}

		spec, ok := m.lookup(id)
		if !ok {
			logger.AddLog("WARN", fmt.Sprintf("health monitor: no config for missing auto-started server %q", id))
			continue
		}

		outcome, err := m.reg.StartServer(ctx, id, &spec, initializer.BuildCommand(spec), spec.Env, true)
		switch {
		case err != nil:
			logger.AddLog("WARN", fmt.Sprintf("health monitor: restart of %q failed: %v", id, err))
		case outcome == registry.StartOK:
			logger.AddLog("INFO", fmt.Sprintf("health monitor: restarted %q", id))
		}
	}
}
