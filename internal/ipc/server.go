// Package ipc implements the daemon's local control surface: a
// Unix-domain stream socket server speaking one-line-JSON-request,
// one-line-JSON-response, then close (§4.5), and the client side used
// both by the CLI and by the mode dispatcher's availability probe
// (§4.6).
//
// Grounded on mcp-scooter's internal/cli/client.ControlClient for the
// request/response-then-close shape, adapted from an HTTP+JSON control
// API onto a raw Unix socket the way the spec's external interfaces
// section describes, since the corpus has no existing Unix-socket IPC
// server to imitate directly.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/logger"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// maxLineSize is the hard per-request/response cap (1 MiB, §4.5/§6).
const maxLineSize = 1 << 20

// acceptPollInterval is how often the accept loop re-checks the
// running flag, per §4.5's "short accept timeout (~1s)".
const acceptPollInterval = time.Second

// ConfigProvider supplies the read-only configuration the get-config
// command reports. The daemon's config loader implements this; the
// IPC server never parses configuration itself.
type ConfigProvider interface {
	ConfigPath() string
	Servers() map[string]registry.ServerSpec
}

// Server is the Unix-domain socket IPC listener.
type Server struct {
	socketPath string
	reg        *registry.Registry
	cfg        ConfigProvider
	listener   *net.UnixListener
	running    int32
}

// New creates a server bound to no socket yet; call Start to listen.
func New(socketPath string, reg *registry.Registry, cfg ConfigProvider) *Server {
	return &Server{socketPath: socketPath, reg: reg, cfg: cfg}
}

// Start unlinks any stale socket file, binds, and listens. The caller
// must call Serve to run the accept loop.
func (s *Server) Start() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("failed to unlink stale socket: %w", err)
		}
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("invalid socket path %q: %w", s.socketPath, err)
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", s.socketPath, err)
	}
	s.listener = l
	atomic.StoreInt32(&s.running, 1)
	return nil
}

// Running reports whether the accept loop should keep running.
func (s *Server) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Serve runs the accept loop until Shutdown is called. Each accepted
// connection is handled in its own goroutine; the accept loop itself
// never performs protocol work, per §4.5.
func (s *Server) Serve() {
	for s.Running() {
		s.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !s.Running() {
				return
			}
			continue
		}
		go s.handleConn(conn)
	}
}

// Shutdown sets running=false, terminates every owned child, closes
// the listener, and unlinks the socket file, in that order (§4.5).
func (s *Server) Shutdown() {
	atomic.StoreInt32(&s.running, 0)
	s.reg.StopAll()
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.socketPath)
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	line, err := readLine(conn, maxLineSize)
	if err != nil {
		writeResponse(conn, map[string]interface{}{"success": false, "error": fmt.Sprintf("read error: %v", err)})
		return
	}

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		writeResponse(conn, map[string]interface{}{"success": false, "error": fmt.Sprintf("malformed request: %v", err)})
		return
	}

	resp := s.dispatch(req)
	writeResponse(conn, resp)
}

// request is the generic shape of every command, per §4.5's table.
type request struct {
	Command       string                 `json:"command"`
	Server        string                 `json:"server"`
	ServerCommand string                 `json:"server_command"`
	Tool          string                 `json:"tool"`
	Arguments     map[string]interface{} `json:"arguments"`
}

func (s *Server) dispatch(req request) map[string]interface{} {
	switch req.Command {
	case "start":
		return s.handleStart(req)
	case "call":
		return s.handleCall(req)
	case "list":
		return s.handleList(req)
	case "list-all":
		return s.handleListAll()
	case "stop":
		return s.handleStop(req)
	case "status":
		return s.handleStatus()
	case "get-config":
		return s.handleGetConfig()
	case "shutdown":
		go s.Shutdown()
		return map[string]interface{}{"success": true, "message": "shutting down"}
	default:
		return map[string]interface{}{"success": false, "error": fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (s *Server) handleStart(req request) map[string]interface{} {
	if req.Server == "" || req.ServerCommand == "" {
		return map[string]interface{}{"success": false, "error": "start requires 'server' and 'server_command'"}
	}

	var spec *registry.ServerSpec
	var env map[string]string
	if existing, ok := s.cfg.Servers()[req.Server]; ok {
		sc := existing
		spec = &sc
		env = existing.Env
	}

	outcome, err := s.reg.StartServer(connBackgroundContext(), req.Server, spec, req.ServerCommand, env, false)
	switch outcome {
	case registry.StartAlreadyRunning:
		return map[string]interface{}{"success": true, "message": "already running"}
	case registry.StartExhausted:
		return map[string]interface{}{"success": false, "error": err.Error()}
	case registry.StartOK:
		return map[string]interface{}{"success": true}
	default:
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
}

func (s *Server) handleCall(req request) map[string]interface{} {
	if req.Server == "" || req.Tool == "" {
		return map[string]interface{}{"success": false, "error": "call requires 'server' and 'tool'"}
	}

	result, err := s.reg.CallTool(req.Server, req.Tool, req.Arguments)
	if err != nil {
		resp := map[string]interface{}{"success": false, "error": err.Error()}
		var toolErr *registry.ToolError
		if asToolError(err, &toolErr) {
			resp["retry"] = toolErr.Retryable
		}
		return resp
	}

	var decoded interface{}
	json.Unmarshal(result, &decoded)
	return map[string]interface{}{"success": true, "result": decoded}
}

func (s *Server) handleList(req request) map[string]interface{} {
	if req.Server == "" {
		return map[string]interface{}{"success": false, "error": "list requires 'server'"}
	}

	tools, err := s.reg.ListTools(req.Server)
	if err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
	return map[string]interface{}{"success": true, "tools": tools}
}

func (s *Server) handleListAll() map[string]interface{} {
	all := s.reg.ListAllTools()
	servers := make(map[string]interface{}, len(all))
	for id, entry := range all {
		servers[id] = map[string]interface{}{"tools": entry.Tools, "count": entry.Count}
	}
	return map[string]interface{}{"success": true, "servers": servers}
}

func (s *Server) handleStop(req request) map[string]interface{} {
	if req.Server == "" {
		return map[string]interface{}{"success": false, "error": "stop requires 'server'"}
	}
	if err := s.reg.StopServer(req.Server); err != nil {
		return map[string]interface{}{"success": false, "error": err.Error()}
	}
	return map[string]interface{}{"success": true}
}

func (s *Server) handleStatus() map[string]interface{} {
	statuses := s.reg.Status()
	result := make([]map[string]interface{}, 0, len(statuses))
	for _, st := range statuses {
		result = append(result, map[string]interface{}{
			"id":          st.ID,
			"autoStarted": st.AutoStarted,
			"uptime":      st.Uptime.Seconds(),
		})
	}
	return map[string]interface{}{"success": true, "status": result}
}

func (s *Server) handleGetConfig() map[string]interface{} {
	servers := make(map[string]interface{})
	for name, spec := range s.cfg.Servers() {
		servers[name] = map[string]interface{}{
			"command":     spec.Command,
			"args":        spec.Args,
			"description": spec.Description,
			"running":     s.reg.IsRunning(name),
		}
	}
	return map[string]interface{}{
		"success":      true,
		"config_path":  s.cfg.ConfigPath(),
		"servers":      servers,
		"server_count": len(servers),
	}
}

func readLine(r io.Reader, limit int64) ([]byte, error) {
	reader := bufio.NewReader(io.LimitReader(r, limit))
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return line, nil
}

func writeResponse(conn net.Conn, resp map[string]interface{}) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.AddLog("ERROR", fmt.Sprintf("ipc: failed to marshal response: %v", err))
		return
	}
	conn.Write(append(data, '\n'))
}
