// Package dispatch implements the mode dispatcher (component H): for
// every user-level operation it resolves the server reference against
// configuration, decides Daemon vs Direct mode, and returns identical
// observable results either way.
//
// Grounded on mcp-scooter's internal/cli/client.ControlClient call
// shape (ListTools/CallTool/GetStatus), generalized from "always talk
// to the control API" into "talk to the daemon if reachable, otherwise
// run a transient client in-process" per spec.md §4.7.
package dispatch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/mcp-scooter/mcpgate/internal/initializer"
	"github.com/mcp-scooter/mcpgate/internal/ipc"
	"github.com/mcp-scooter/mcpgate/internal/mcprpc"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// ConfigProvider is the subset of the loaded configuration the
// dispatcher needs to resolve server references.
type ConfigProvider interface {
	Servers() map[string]registry.ServerSpec
	Socket() string
	ToolTimeout() int
}

// Dispatcher resolves server references and routes operations to the
// daemon (when reachable) or runs them directly, in-process.
type Dispatcher struct {
	cfg       ConfigProvider
	noDaemon  bool
	verbose   bool
	logf      func(string, ...interface{})
}

// New creates a dispatcher. noDaemon forces Direct mode unconditionally.
func New(cfg ConfigProvider, noDaemon bool, verbose bool, logf func(string, ...interface{})) *Dispatcher {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Dispatcher{cfg: cfg, noDaemon: noDaemon, verbose: verbose, logf: logf}
}

// Resolved is a server reference resolved against configuration.
type Resolved struct {
	ID          string
	CommandLine string
	Env         map[string]string
	Spec        *registry.ServerSpec
}

// Resolve maps a user-supplied server reference (a configured name, or
// a raw command string) onto a stable id and command line.
func (d *Dispatcher) Resolve(ref string) Resolved {
	if spec, ok := d.cfg.Servers()[ref]; ok {
		specCopy := spec
		return Resolved{ID: ref, CommandLine: initializer.BuildCommand(spec), Env: spec.Env, Spec: &specCopy}
	}
	return Resolved{ID: SynthesizeID(ref), CommandLine: ref}
}

// SynthesizeID derives a stable short id from a raw command string:
// the first 12 hex characters of its MD5 digest (§6). Collisions are
// tolerated; this is not a security boundary.
func SynthesizeID(commandLine string) string {
	sum := md5.Sum([]byte(commandLine))
	return hex.EncodeToString(sum[:])[:12]
}

// Mode is the chosen execution mode for one operation.
type Mode int

const (
	ModeDaemon Mode = iota
	ModeDirect
)

// decideMode probes the daemon unless noDaemon forces Direct.
func (d *Dispatcher) decideMode() Mode {
	if d.noDaemon {
		return ModeDirect
	}
	if ipc.Probe(d.cfg.Socket()) {
		return ModeDaemon
	}
	if d.verbose {
		d.logf("daemon unavailable at %s, falling back to direct mode", d.cfg.Socket())
	}
	return ModeDirect
}

// ListTools lists tools for ref, in whichever mode is currently active.
func (d *Dispatcher) ListTools(ctx context.Context, ref string) ([]mcprpc.Tool, error) {
	resolved := d.Resolve(ref)

	if d.decideMode() == ModeDaemon {
		return d.listToolsViaDaemon(resolved)
	}
	return d.listToolsDirect(ctx, resolved)
}

// CallTool calls tool on ref with arguments, in whichever mode is active.
func (d *Dispatcher) CallTool(ctx context.Context, ref, tool string, arguments interface{}) (mcprpc.JsonValue, error) {
	resolved := d.Resolve(ref)

	if d.decideMode() == ModeDaemon {
		return d.callToolViaDaemon(resolved, tool, arguments)
	}
	return d.callToolDirect(ctx, resolved, tool, arguments)
}

// ListAllTools lists every currently running server's tools via the
// daemon; there is no meaningful "direct" analogue since Direct mode
// never keeps more than one transient server alive at a time.
func (d *Dispatcher) ListAllTools() (map[string]interface{}, error) {
	client := ipc.NewSocketClient(d.cfg.Socket(), ipc.ToolCallTimeout)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	resp, err := client.SendRequest(map[string]interface{}{"command": "list-all"})
	if err != nil {
		return nil, err
	}
	if ok, _ := resp["success"].(bool); !ok {
		return nil, fmt.Errorf("%v", resp["error"])
	}
	servers, _ := resp["servers"].(map[string]interface{})
	return servers, nil
}

func (d *Dispatcher) listToolsViaDaemon(r Resolved) ([]mcprpc.Tool, error) {
	client := ipc.NewSocketClient(d.cfg.Socket(), ipc.ToolCallTimeout)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	if _, err := client.SendRequest(map[string]interface{}{"command": "start", "server": r.ID, "server_command": r.CommandLine}); err != nil {
		return nil, err
	}

	client2 := ipc.NewSocketClient(d.cfg.Socket(), ipc.ToolCallTimeout)
	if err := client2.Connect(); err != nil {
		return nil, err
	}
	resp, err := client2.SendRequest(map[string]interface{}{"command": "list", "server": r.ID})
	if err != nil {
		return nil, err
	}
	if ok, _ := resp["success"].(bool); !ok {
		return nil, fmt.Errorf("%v", resp["error"])
	}
	return DecodeTools(resp["tools"]), nil
}

func (d *Dispatcher) callToolViaDaemon(r Resolved, tool string, arguments interface{}) (mcprpc.JsonValue, error) {
	client := ipc.NewSocketClient(d.cfg.Socket(), ipc.ToolCallTimeout)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	if _, err := client.SendRequest(map[string]interface{}{"command": "start", "server": r.ID, "server_command": r.CommandLine}); err != nil {
		return nil, err
	}

	client2 := ipc.NewSocketClient(d.cfg.Socket(), ipc.ToolCallTimeout)
	if err := client2.Connect(); err != nil {
		return nil, err
	}
	args, _ := arguments.(map[string]interface{})
	resp, err := client2.SendRequest(map[string]interface{}{"command": "call", "server": r.ID, "tool": tool, "arguments": args})
	if err != nil {
		return nil, err
	}
	if ok, _ := resp["success"].(bool); !ok {
		return nil, fmt.Errorf("%v", resp["error"])
	}
	return encodeResult(resp["result"]), nil
}

func (d *Dispatcher) listToolsDirect(ctx context.Context, r Resolved) ([]mcprpc.Tool, error) {
	command, args, err := mcprpc.SplitCommand(r.CommandLine)
	if err != nil {
		return nil, err
	}
	client := mcprpc.New(command, args)
	if err := client.Start(ctx, r.Env); err != nil {
		return nil, err
	}
	defer client.Stop()
	return client.ListTools()
}

func (d *Dispatcher) callToolDirect(ctx context.Context, r Resolved, tool string, arguments interface{}) (mcprpc.JsonValue, error) {
	command, args, err := mcprpc.SplitCommand(r.CommandLine)
	if err != nil {
		return nil, err
	}
	client := mcprpc.New(command, args)
	if err := client.Start(ctx, r.Env); err != nil {
		return nil, err
	}
	defer client.Stop()
	return client.CallTool(tool, arguments)
}

// DecodeTools converts a decoded IPC response's "tools" field (a
// []interface{} of generic maps) back into []mcprpc.Tool. Exported so
// CLI commands decoding a list-all response can reuse the same
// conversion ListTools uses internally. Every mcprpc.Tool field is
// carried over; schema objects are re-encoded from the decoded
// response, so their keys come back in sorted order.
func DecodeTools(raw interface{}) []mcprpc.Tool {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	tools := make([]mcprpc.Tool, 0, len(items))
	for _, item := range items {
		if _, ok := item.(map[string]interface{}); !ok {
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var t mcprpc.Tool
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		tools = append(tools, t)
	}
	return tools
}

func encodeResult(raw interface{}) mcprpc.JsonValue {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return data
}
