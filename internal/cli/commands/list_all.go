package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/dispatch"
	"github.com/mcp-scooter/mcpgate/internal/mcpgateerr"
	"github.com/mcp-scooter/mcpgate/internal/mcprpc"
)

var listAllCmd = &cobra.Command{
	Use:   "list-all",
	Short: "List tools across every currently running server",
	Long: `Lists tools for every server the daemon currently has running.
Unlike list-tools, this always talks to the daemon: Direct mode never
keeps more than one transient server alive at a time, so there is
nothing to aggregate without one.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		d := newDispatcher(cfg)
		formatter := formatterFromFlags()

		servers, err := d.ListAllTools()
		if err != nil {
			fmt.Println(formatter.FormatError(mcpgateerr.Classify(err)))
			os.Exit(1)
		}

		byServer := make(map[string][]mcprpc.Tool, len(servers))
		for id, raw := range servers {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			byServer[id] = dispatch.DecodeTools(entry["tools"])
		}
		printResult(formatter.FormatAllTools(byServer))
	},
}

func init() {
	rootCmd.AddCommand(listAllCmd)
}
