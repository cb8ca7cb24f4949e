// Package output formats mode-dispatcher results for the terminal.
//
// Grounded on mcp-scooter's internal/cli/output.Formatter: the same
// fatih/color + olekukonko/tablewriter pairing, narrowed to the two
// formats spec.md's out-of-scope list leaves room for — a minimal
// tabular default and --json — since markdown generation and
// placeholder-example rendering are explicit Non-goals.
package output

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/mcp-scooter/mcpgate/internal/mcpgateerr"
	"github.com/mcp-scooter/mcpgate/internal/mcprpc"
)

// Format is the output rendering mode.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Formatter renders dispatcher results and classified errors.
type Formatter struct {
	format Format
	color  bool
}

// New creates a formatter. useColor is typically os.Stdout's tty-ness.
func New(format Format, useColor bool) *Formatter {
	return &Formatter{format: format, color: useColor}
}

// FormatError renders a classified error, with a hint line in text mode.
func (f *Formatter) FormatError(c mcpgateerr.Classified) string {
	if f.format == FormatJSON {
		data, _ := json.MarshalIndent(c, "", "  ")
		return string(data)
	}
	var msg string
	if f.color {
		msg = color.RedString("Error [%s]: %s", c.Kind, c.Message)
		if c.Hint != "" {
			msg += "\n" + color.YellowString("Hint: %s", c.Hint)
		}
	} else {
		msg = fmt.Sprintf("Error [%s]: %s", c.Kind, c.Message)
		if c.Hint != "" {
			msg += "\nHint: " + c.Hint
		}
	}
	return msg
}

// FormatTools renders a tool listing as a table or JSON.
func (f *Formatter) FormatTools(tools []mcprpc.Tool) string {
	if f.format == FormatJSON {
		data, _ := json.MarshalIndent(tools, "", "  ")
		return string(data)
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Name", "Description"}))
	for _, t := range tools {
		table.Append([]string{t.Name, t.Description})
	}
	table.Render()
	return ""
}

// FormatAllTools renders the multi-server listing returned by list-all.
func (f *Formatter) FormatAllTools(byServer map[string][]mcprpc.Tool) string {
	if f.format == FormatJSON {
		data, _ := json.MarshalIndent(byServer, "", "  ")
		return string(data)
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Server", "Tool", "Description"}))
	for server, tools := range byServer {
		for _, t := range tools {
			table.Append([]string{server, t.Name, t.Description})
		}
	}
	table.Render()
	return ""
}

// FormatToolResult renders the opaque payload returned by a tool call.
// In text mode it extracts the concatenated text content blocks of a
// tools/call result shaped {"content":[...],"isError":bool}; in JSON
// mode it pretty-prints the raw payload.
func (f *Formatter) FormatToolResult(result mcprpc.JsonValue) string {
	if f.format == FormatJSON {
		var pretty interface{}
		if json.Unmarshal(result, &pretty) == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			return string(data)
		}
		return string(result)
	}

	text, isError := extractText(result)
	if isError {
		if f.color {
			return color.RedString("Error: ") + text
		}
		return "Error: " + text
	}
	return text
}

func extractText(result mcprpc.JsonValue) (string, bool) {
	var decoded struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return string(result), false
	}
	out := ""
	for _, c := range decoded.Content {
		if c.Type != "text" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += c.Text
	}
	if out == "" {
		return string(result), decoded.IsError
	}
	return out, decoded.IsError
}

// FormatStatus renders the daemon's server status list.
func (f *Formatter) FormatStatus(statuses []map[string]interface{}) string {
	if f.format == FormatJSON {
		data, _ := json.MarshalIndent(statuses, "", "  ")
		return string(data)
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithHeader([]string{"Server", "Auto-started", "Uptime (s)"}))
	for _, s := range statuses {
		table.Append([]string{
			fmt.Sprintf("%v", s["id"]),
			fmt.Sprintf("%v", s["autoStarted"]),
			fmt.Sprintf("%.0f", toFloat(s["uptime"])),
		})
	}
	table.Render()
	return ""
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	default:
		return 0
	}
}
