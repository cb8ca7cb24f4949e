package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// incomingRequest decodes a JSON-RPC request line keeping params raw.
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
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// runFakeServer is a minimal MCP stdio server used as the child
// process for registry tests: it answers initialize/tools.list/
// tools.call(add|crash) the same way the fixtures in
// internal/mcprpc's own tests do, kept local here since the helper
// re-exec pattern needs its fake server compiled into this package's
// test binary.
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
		case "notifications/initialized":
		case "tools/list":
			writeFakeResult(req.ID, map[string]interface{}{"tools": []map[string]string{
				{"name": "echo"}, {"name": "add"},
			}})
		case "tools/call":
			var params struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			}
			json.Unmarshal(req.Params, &params)
			switch params.Name {
			case "crash":
				os.Exit(1)
			case "slow":
				time.Sleep(time.Second)
				writeFakeResult(req.ID, map[string]interface{}{"content": []interface{}{}})
			case "add":
				a, _ := params.Arguments["a"].(float64)
				b, _ := params.Arguments["b"].(float64)
				writeFakeResult(req.ID, map[string]interface{}{
					"content": []map[string]interface{}{{"type": "text", "text": fmt.Sprintf("%g", a+b)}},
				})
			default:
				writeFakeError(req.ID, -32601, "unknown tool")
			}
		}
	}
}

func writeFakeResult(id int64, result interface{}) {
	data, _ := json.Marshal(result)
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Result: data}
	out, _ := json.Marshal(resp)
	os.Stdout.Write(append(out, '\n'))
}

func writeFakeError(id int64, code int, message string) {
	resp := rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
	out, _ := json.Marshal(resp)
	os.Stdout.Write(append(out, '\n'))
}

// helperCommandLine builds a commandLine string that re-execs this
// test binary as the fake MCP server defined in
// internal/mcprpc/client_test.go's style (a parallel helper lives
// alongside this test since registry tests need their own binary).
func helperCommandLine(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return fmt.Sprintf("%s -test.run=TestHelperProcess", exe)
}

func helperEnv() map[string]string {
	return map[string]string{"REGISTRY_HELPER_PROCESS": "1"}
}

func TestMain(m *testing.M) {
	if os.Getenv("REGISTRY_HELPER_PROCESS") == "1" {
		runFakeServer()
		return
	}
	os.Exit(m.Run())
}

func TestHelperProcess(t *testing.T) {}

func TestStartServerOkAndAlreadyRunning(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	outcome, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	assert.Equal(t, StartOK, outcome)
	assert.True(t, r.IsRunning("srv1"))

	outcome, err = r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	assert.Equal(t, StartAlreadyRunning, outcome)

	require.NoError(t, r.StopServer("srv1"))
	assert.False(t, r.IsRunning("srv1"))
}

func TestStartServerEnforcesMaxServers(t *testing.T) {
	r := New(1)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	outcome, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	require.Equal(t, StartOK, outcome)

	outcome, err = r.StartServer(ctx, "srv2", nil, cmd, helperEnv(), false)
	assert.Equal(t, StartExhausted, outcome)
	assert.Error(t, err)
}

func TestCallToolAndListTools(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	_, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)

	tools, err := r.ListTools("srv1")
	require.NoError(t, err)
	assert.Len(t, tools, 2)

	result, err := r.CallTool("srv1", "add", map[string]interface{}{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Contains(t, string(result), "5")
}

func TestCallToolEvictsOnCrash(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	_, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)

	_, err = r.CallTool("srv1", "crash", nil)
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.True(t, toolErr.Retryable)

	assert.False(t, r.IsRunning("srv1"))

	_, err = r.CallTool("srv1", "add", map[string]interface{}{"a": 1, "b": 1})
	assert.ErrorIs(t, err, ErrNotRunning)

	outcome, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	assert.Equal(t, StartOK, outcome)

	result, err := r.CallTool("srv1", "add", map[string]interface{}{"a": 1, "b": 1})
	require.NoError(t, err)
	assert.Contains(t, string(result), "2")
}

func TestConcurrentDistinctServerCallsDoNotSerialize(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	_, err := r.StartServer(ctx, "a", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	_, err = r.StartServer(ctx, "b", nil, cmd, helperEnv(), false)
	require.NoError(t, err)

	start := time.Now()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			// Each "slow" call holds its server for 1s, so two calls that
			// serialized would take at least 2s.
			_, err := r.CallTool(id, "slow", nil)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStatusReportsUptime(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	_, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), true)
	require.NoError(t, err)

	statuses := r.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "srv1", statuses[0].ID)
	assert.True(t, statuses[0].AutoStarted)
	assert.GreaterOrEqual(t, statuses[0].Uptime, time.Duration(0))

	ids := r.AutoStartedIDs()
	assert.Equal(t, []string{"srv1"}, ids)
}

func TestStartServerAppliesEnvResolver(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	var seen map[string]string
	r.SetEnvResolver(func(_ context.Context, env map[string]string) (map[string]string, error) {
		seen = env
		out := make(map[string]string, len(env))
		for k, v := range env {
			out[k] = v
		}
		out["RESOLVED"] = "1"
		return out, nil
	})

	outcome, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	assert.Equal(t, StartOK, outcome)
	assert.Equal(t, "1", seen["REGISTRY_HELPER_PROCESS"])
}

func TestStartServerFailsWhenResolverErrors(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	r.SetEnvResolver(func(_ context.Context, env map[string]string) (map[string]string, error) {
		return nil, fmt.Errorf("no credential")
	})

	outcome, err := r.StartServer(ctx, "srv1", nil, cmd, helperEnv(), false)
	assert.Equal(t, StartError, outcome)
	assert.Error(t, err)
	assert.False(t, r.IsRunning("srv1"))
}

func TestStopAllTerminatesEveryChild(t *testing.T) {
	r := New(0)
	ctx := context.Background()
	cmd := helperCommandLine(t)

	_, err := r.StartServer(ctx, "a", nil, cmd, helperEnv(), false)
	require.NoError(t, err)
	_, err = r.StartServer(ctx, "b", nil, cmd, helperEnv(), false)
	require.NoError(t, err)

	r.StopAll()
	assert.Equal(t, 0, r.Count())
}
