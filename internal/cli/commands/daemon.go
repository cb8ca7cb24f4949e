package commands

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/daemon"
	"github.com/mcp-scooter/mcpgate/internal/ipc"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the mcpgate daemon process",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon if it is not already running",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		if daemon.AlreadyRunning(cfg.Socket()) {
			fmt.Println("mcpgate: daemon already running")
			return
		}

		bin, err := locateDaemonBinary()
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcpgate: %v\n", err)
			os.Exit(1)
		}

		spawn := exec.Command(bin, "--config", cfg.ConfigPath())
		if err := spawn.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "mcpgate: failed to launch daemon: %v\n", err)
			os.Exit(1)
		}
		// mcpgated daemonizes internally and the launching process exits
		// immediately once the detached child is spawned; wait for that exit.
		spawn.Wait()

		if !waitForProbe(cfg.Socket(), 3*time.Second) {
			fmt.Fprintln(os.Stderr, "mcpgate: daemon did not become reachable within 3s")
			os.Exit(1)
		}
		fmt.Println("mcpgate: daemon started")
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := daemon.Stop(cfg.Socket()); err != nil {
			fmt.Fprintf(os.Stderr, "mcpgate: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("mcpgate: daemon stopped")
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is running",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		formatter := formatterFromFlags()

		if ipc.Probe(cfg.Socket()) {
			client := ipc.NewSocketClient(cfg.Socket(), ipc.ControlTimeout)
			if err := client.Connect(); err == nil {
				resp, err := client.SendRequest(map[string]interface{}{"command": "status"})
				if err == nil {
					raw, _ := resp["status"].([]interface{})
					statuses := make([]map[string]interface{}, 0, len(raw))
					for _, r := range raw {
						if m, ok := r.(map[string]interface{}); ok {
							statuses = append(statuses, m)
						}
					}
					printResult(formatter.FormatStatus(statuses))
					return
				}
			}
		}

		// Socket unreachable: fall back to the persisted state file to
		// distinguish "daemon crashed" from "daemon never started" (§2
		// of SPEC_FULL's DOMAIN STACK).
		st, err := daemon.ReadState(cfg.Socket())
		if err != nil {
			fmt.Println("mcpgate: daemon not running")
			os.Exit(1)
		}
		if daemon.ProcessAlive(st.PID) {
			fmt.Printf("mcpgate: daemon process %d is alive but socket %q is unreachable\n", st.PID, cfg.Socket())
		} else {
			fmt.Printf("mcpgate: daemon crashed (last seen pid %d, started %s)\n", st.PID, st.StartedAt.Format(time.RFC3339))
		}
		os.Exit(1)
	},
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// locateDaemonBinary finds the mcpgated binary: first alongside the
// running mcpgate executable, then on $PATH.
func locateDaemonBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "mcpgated")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath("mcpgated")
	if err != nil {
		return "", fmt.Errorf("mcpgated binary not found alongside mcpgate or on PATH: %w", err)
	}
	return path, nil
}

func waitForProbe(socket string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ipc.Probe(socket) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return ipc.Probe(socket)
}

