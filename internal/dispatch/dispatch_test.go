package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-scooter/mcpgate/internal/ipc"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

func TestMain(m *testing.M) {
	if os.Getenv("DISPATCH_HELPER_PROCESS") == "1" {
		runFakeServer()
		return
	}
	os.Exit(m.Run())
}

func TestHelperProcess(t *testing.T) {}

func helperCommand(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return fmt.Sprintf("%s -test.run=TestHelperProcess", exe)
}

type fakeConfig struct {
	servers map[string]registry.ServerSpec
	socket  string
}

func (f *fakeConfig) Servers() map[string]registry.ServerSpec { return f.servers }
func (f *fakeConfig) Socket() string                          { return f.socket }
func (f *fakeConfig) ToolTimeout() int                         { return 30 }

func TestSynthesizeIDIsDeterministic(t *testing.T) {
	id1 := SynthesizeID("npx -y server-fs /tmp")
	id2 := SynthesizeID("npx -y server-fs /tmp")
	id3 := SynthesizeID("different command")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Len(t, id1, 12)
}

func TestResolveConfiguredNameVsRawCommand(t *testing.T) {
	cfg := &fakeConfig{
		servers: map[string]registry.ServerSpec{
			"echo": {Name: "echo", Command: "echo-bin", Args: []string{"-x"}},
		},
	}
	d := New(cfg, true, false, nil)

	resolved := d.Resolve("echo")
	assert.Equal(t, "echo", resolved.ID)
	assert.Equal(t, "echo-bin -x", resolved.CommandLine)

	resolved2 := d.Resolve("some raw command --flag")
	assert.Equal(t, SynthesizeID("some raw command --flag"), resolved2.ID)
}

func TestFallbackTransparencyListTools(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "mcp.sock")
	cfg := &fakeConfig{
		servers: map[string]registry.ServerSpec{
			"echo": {Name: "echo", Command: helperCommand(t), Env: map[string]string{"DISPATCH_HELPER_PROCESS": "1"}},
		},
		socket: socketPath,
	}

	direct := New(cfg, true, false, nil)
	directTools, err := direct.ListTools(context.Background(), "echo")
	require.NoError(t, err)

	reg := registry.New(0)
	_, err = reg.StartServer(context.Background(), "echo", nil, cfg.servers["echo"].Command, cfg.servers["echo"].Env, true)
	require.NoError(t, err)
	server := ipc.New(socketPath, reg, fakeIPCConfig{cfg.servers})
	require.NoError(t, server.Start())
	go server.Serve()
	defer server.Shutdown()

	daemon := New(cfg, false, false, nil)
	daemonTools, err := daemon.ListTools(context.Background(), "echo")
	require.NoError(t, err)

	assert.Equal(t, directTools, daemonTools)
}

type fakeIPCConfig struct {
	servers map[string]registry.ServerSpec
}

func (f fakeIPCConfig) ConfigPath() string                      { return "" }
func (f fakeIPCConfig) Servers() map[string]registry.ServerSpec { return f.servers }

// --- fake MCP stdio server ---

type incomingRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func runFakeServer() {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			os.Exit(0)
		}
		var req incomingRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		switch req.Method {
		case "initialize":
			writeFakeResult(req.ID, map[string]interface{}{"protocolVersion": "2024-11-05"})
		case "tools/list":
			writeFakeResult(req.ID, map[string]interface{}{"tools": []map[string]string{
				{"name": "echo"}, {"name": "add"},
			}})
		}
	}
}

func writeFakeResult(id int64, result interface{}) {
	data, _ := json.Marshal(result)
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: data}
	out, _ := json.Marshal(resp)
	os.Stdout.Write(append(out, '\n'))
}
