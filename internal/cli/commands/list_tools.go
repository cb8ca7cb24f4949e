package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/mcpgateerr"
)

var listToolsCmd = &cobra.Command{
	Use:   "list-tools <server>",
	Short: "List the tools exposed by one MCP server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		d := newDispatcher(cfg)
		formatter := formatterFromFlags()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()

		tools, err := d.ListTools(ctx, args[0])
		if err != nil {
			fmt.Println(formatter.FormatError(mcpgateerr.Classify(err)))
			os.Exit(1)
		}
		printResult(formatter.FormatTools(tools))
	},
}

func init() {
	rootCmd.AddCommand(listToolsCmd)
}
