//go:build !windows

// Package daemon wires the registry, initializer, health monitor, and
// IPC server together into the long-running mcpgated process:
// daemonization, signal handling, and shutdown ordering.
//
// Grounded on mcp-scooter's cmd-level wiring style (small, explicit
// main functions composing internal/ packages) plus
// original_source/mcp_daemon.py's daemon_start/daemon_stop for the
// already-running probe and the post-shutdown settle behavior the
// distilled spec simplified away.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/config"
	"github.com/mcp-scooter/mcpgate/internal/credentials"
	"github.com/mcp-scooter/mcpgate/internal/health"
	"github.com/mcp-scooter/mcpgate/internal/initializer"
	"github.com/mcp-scooter/mcpgate/internal/ipc"
	"github.com/mcp-scooter/mcpgate/internal/logger"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// Daemon owns every long-lived piece of the running process.
type Daemon struct {
	cfg     config.Config
	reg     *registry.Registry
	server  *ipc.Server
	pidfile *PIDFile
}

// New creates a daemon from a loaded configuration.
func New(cfg config.Config) *Daemon {
	reg := registry.New(cfg.Daemon().MaxServers)
	if providers := cfg.OAuthProviders(); len(providers) > 0 {
		store := credentials.NewPlatformStore(filepath.Dir(cfg.Socket()))
		tokens := credentials.NewTokenStore(store, providers)
		reg.SetEnvResolver(tokens.ResolveEnv)
	}
	server := ipc.New(cfg.Socket(), reg, configAdapter{cfg})
	return &Daemon{cfg: cfg, reg: reg, server: server}
}

type configAdapter struct{ cfg config.Config }

func (a configAdapter) ConfigPath() string                      { return a.cfg.ConfigPath() }
func (a configAdapter) Servers() map[string]registry.ServerSpec { return a.cfg.Servers() }

// AlreadyRunning reports whether a daemon appears to already own the
// configured socket — the original implementation's daemon_start
// probe, kept ahead of spec.md's "unlink stale socket" step so a
// second daemon refuses to start rather than stealing the socket.
func AlreadyRunning(socket string) bool {
	return ipc.Probe(socket)
}

// Start runs the full daemon lifecycle: initializer, health monitor,
// IPC server, signal handling. Blocks until shutdown completes.
func (d *Daemon) Start(ctx context.Context) error {
	pidfile, err := AcquirePIDFile(pidfilePath(d.cfg.Socket()))
	if err != nil {
		return err
	}
	d.pidfile = pidfile
	defer d.pidfile.Release()

	if err := d.server.Start(); err != nil {
		return err
	}

	if err := WriteState(d.cfg.Socket(), State{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Socket:     d.cfg.Socket(),
		ConfigPath: d.cfg.ConfigPath(),
	}); err != nil {
		logger.AddLog("WARN", fmt.Sprintf("failed to write daemon state file: %v", err))
	}
	defer RemoveState(d.cfg.Socket())

	specs := make([]registry.ServerSpec, 0, len(d.cfg.Servers()))
	for _, s := range d.cfg.Servers() {
		specs = append(specs, s)
	}
	daemonCfg := d.cfg.Daemon()
	result, err := initializer.Run(
		ctx, d.reg, specs,
		daemonCfg.ParallelInitialization,
		time.Duration(daemonCfg.InitializationTimeout)*time.Second,
		initializer.FailurePolicy(daemonCfg.OnInitFailure),
	)
	if err != nil {
		d.server.Shutdown()
		return fmt.Errorf("initialization failed: %w", err)
	}
	logger.AddLog("INFO", fmt.Sprintf("initialization complete: total=%d successful=%d failed=%d optionalFailures=%d",
		result.Total, result.Successful, result.Failed, result.OptionalFailures))

	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	if len(d.reg.AutoStartedIDs()) > 0 {
		lookup := func(id string) (registry.ServerSpec, bool) {
			spec, ok := d.cfg.Servers()[id]
			return spec, ok
		}
		mon := health.New(d.reg, lookup, 0)
		go mon.Run(healthCtx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.AddLog("INFO", fmt.Sprintf("received signal %s, shutting down", sig))
			d.server.Shutdown()
		case <-ctx.Done():
			d.server.Shutdown()
		}
	}()

	d.server.Serve()
	return nil
}

// Shutdown requests an orderly shutdown, equivalent to the IPC
// `shutdown` command.
func (d *Daemon) Shutdown() {
	d.server.Shutdown()
}

func pidfilePath(socket string) string {
	return socket + ".pid"
}
