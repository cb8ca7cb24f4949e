package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcp-scooter/mcpgate/internal/dispatch"
	"github.com/mcp-scooter/mcpgate/internal/mcprpc"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive <server>",
	Short: "Start an interactive session against one MCP server",
	Long: `Starts a long-lived direct-mode session against server: a single
transient MCP client stays up for the life of the REPL. Interactive
sessions always use Direct mode (§4.7) — there is no daemon handoff
mid-session.

Commands: list, call <tool> [json-args], quit.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		d := dispatch.New(cfg, true, verbose, nil)
		formatter := formatterFromFlags()

		resolved := d.Resolve(args[0])
		command, cmdArgs, err := mcprpc.SplitCommand(resolved.CommandLine)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mcpgate: %v\n", err)
			os.Exit(1)
		}

		client := mcprpc.New(command, cmdArgs)
		ctx := context.Background()
		if err := client.Start(ctx, resolved.Env); err != nil {
			fmt.Fprintf(os.Stderr, "mcpgate: failed to start %q: %v\n", args[0], err)
			os.Exit(1)
		}
		defer client.Stop()

		fmt.Printf("Connected to %q. Commands: list, call <tool> [json-args], quit.\n", args[0])
		runREPL(client, formatter)
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

func runREPL(client *mcprpc.Client, formatter interface {
	FormatTools([]mcprpc.Tool) string
	FormatToolResult(mcprpc.JsonValue) string
}) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		switch fields[0] {
		case "quit", "exit":
			return
		case "list":
			tools, err := client.ListTools()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			if out := formatter.FormatTools(tools); out != "" {
				fmt.Println(out)
			}
		case "call":
			if len(fields) < 2 {
				fmt.Fprintln(os.Stderr, "usage: call <tool> [json-args]")
				continue
			}
			toolAndArgs := strings.SplitN(fields[1], " ", 2)
			tool := toolAndArgs[0]
			var arguments map[string]interface{}
			if len(toolAndArgs) == 2 {
				if err := json.Unmarshal([]byte(toolAndArgs[1]), &arguments); err != nil {
					fmt.Fprintf(os.Stderr, "invalid json-arguments: %v\n", err)
					continue
				}
			}
			result, err := client.CallTool(tool, arguments)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println(formatter.FormatToolResult(result))
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
	}
}
