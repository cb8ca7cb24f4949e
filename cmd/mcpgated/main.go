// Command mcpgated is the daemon process: it loads configuration,
// daemonizes (a single self re-exec into a new session via setsid),
// and then owns the registry,
// initializer, health monitor, and IPC server for the life of the
// process.
//
// Grounded on mcp-scooter's cmd/scooter/main.go: a small main that
// resolves an app directory, initializes the logger, and blocks on a
// long-running server loop until a signal arrives — generalized here
// from an HTTP control+gateway pair onto the Unix-socket IPC server
// of internal/daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mcp-scooter/mcpgate/internal/config"
	"github.com/mcp-scooter/mcpgate/internal/daemon"
	"github.com/mcp-scooter/mcpgate/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $MCPGATE_CONFIG or ~/.config/mcpgate/config.yaml)")
	foreground := flag.Bool("foreground", false, "run in the foreground instead of daemonizing")
	flag.Parse()

	path, err := config.DiscoverPath(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpgated: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpgated: %v\n", err)
		os.Exit(1)
	}

	if daemon.AlreadyRunning(cfg.Socket()) {
		fmt.Fprintf(os.Stderr, "mcpgated: a daemon is already running on socket %q\n", cfg.Socket())
		os.Exit(1)
	}

	if !*foreground && !daemon.IsForegroundChild() {
		if err := daemon.Daemonize(); err != nil {
			fmt.Fprintf(os.Stderr, "mcpgated: failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		return
	}

	appDir, err := appDataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpgated: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(appDir); err != nil {
		fmt.Fprintf(os.Stderr, "mcpgated: failed to initialize logging: %v\n", err)
	}
	defer logger.Close()

	d := daemon.New(cfg)
	if err := d.Start(context.Background()); err != nil {
		logger.AddLog("ERROR", fmt.Sprintf("daemon exited with error: %v", err))
		fmt.Fprintf(os.Stderr, "mcpgated: %v\n", err)
		os.Exit(1)
	}
}

// appDataDir resolves the daemon's log/state directory: $MCPGATE_CONFIG_DIR
// if set, else the OS config directory's mcpgate subdirectory.
func appDataDir() (string, error) {
	if dir := os.Getenv("MCPGATE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving app data directory: %w", err)
	}
	dir := filepath.Join(configDir, "mcpgate")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating app data directory: %w", err)
	}
	return dir, nil
}
