// Package commands implements the mcpgate CLI surface: list-tools,
// call-tool, list-all, daemon start|stop|status, and interactive.
//
// Grounded on mcp-scooter's internal/cli/commands/root.go: a cobra
// root command carrying the same persistent flag set, generalized
// from an HTTP control-API client onto internal/dispatch.Dispatcher.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/config"
	"github.com/mcp-scooter/mcpgate/internal/dispatch"
	"github.com/mcp-scooter/mcpgate/internal/cli/output"
)

var (
	cfgFile    string
	logLevel   string
	jsonOutput bool
	directMode bool
	verbose    bool
	timeoutMs  int
)

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "mcpgate - a daemon and CLI gateway for Model Context Protocol servers",
	Long: `mcpgate runs MCP stdio servers behind a persistent daemon so tool
calls don't pay process-startup cost on every invocation, and falls back
to a one-shot direct mode transparently when no daemon is reachable.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $MCPGATE_CONFIG or ~/.config/mcpgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&directMode, "direct", false, "force direct mode (skip the daemon, always spawn transiently)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "log mode-selection decisions to stderr")
	rootCmd.PersistentFlags().IntVar(&timeoutMs, "timeout", 30000, "tool call timeout in milliseconds")
}

// loadConfig discovers and loads the configuration file, exiting with
// a message on failure since every subcommand needs it to resolve
// server references.
func loadConfig() config.Config {
	path, err := config.DiscoverPath(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpgate: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpgate: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func newDispatcher(cfg config.Config) *dispatch.Dispatcher {
	logf := func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	return dispatch.New(cfg, directMode, verbose, logf)
}

func formatterFromFlags() *output.Formatter {
	format := output.FormatText
	if jsonOutput {
		format = output.FormatJSON
	}
	return output.New(format, !jsonOutput)
}

// printResult prints s unless it's empty — table-format renders write
// directly to stdout and return "" so this avoids a trailing blank line.
func printResult(s string) {
	if s != "" {
		fmt.Println(s)
	}
}
