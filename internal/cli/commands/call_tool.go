package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/mcpgateerr"
)

var callToolCmd = &cobra.Command{
	Use:   "call-tool <server> <tool> [json-arguments]",
	Short: "Call a tool on an MCP server",
	Long: `Calls a tool on an MCP server, resolved either by configured name or
by a raw command string. json-arguments, if given, must be a JSON object
and defaults to {}.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		d := newDispatcher(cfg)
		formatter := formatterFromFlags()

		arguments := map[string]interface{}{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &arguments); err != nil {
				fmt.Fprintf(os.Stderr, "mcpgate: invalid json-arguments: %v\n", err)
				os.Exit(1)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()

		result, err := d.CallTool(ctx, args[0], args[1], arguments)
		if err != nil {
			fmt.Println(formatter.FormatError(mcpgateerr.Classify(err)))
			os.Exit(1)
		}
		printResult(formatter.FormatToolResult(result))
	},
}

func init() {
	rootCmd.AddCommand(callToolCmd)
}
