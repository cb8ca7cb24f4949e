// Command mcpgate is the CLI entry point: list-tools, call-tool,
// list-all, daemon start|stop|status, and an interactive REPL, all
// routed through the mode dispatcher (internal/dispatch).
//
// Grounded on mcp-scooter's cmd/scooter-cli/main.go: a one-line main
// delegating entirely to internal/cli/commands.Execute.
package main

import (
	"os"

	"github.com/mcp-scooter/mcpgate/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
