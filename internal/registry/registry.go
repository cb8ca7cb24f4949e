package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/logger"
	"github.com/mcp-scooter/mcpgate/internal/mcprpc"
)

// StartOutcome is the result of a startServer call.
type StartOutcome int

const (
	StartOK StartOutcome = iota
	StartAlreadyRunning
	StartExhausted
	StartError
)

// ErrNotRunning is returned by operations against an absent server-id.
var ErrNotRunning = fmt.Errorf("server not running")

// ToolError is returned by CallTool/ListTools failures; Retryable is
// true whenever the failure caused the entry to be evicted, per
// spec.md §4.2: a fresh start is always the recovery path.
type ToolError struct {
	Err       error
	Retryable bool
}

func (e *ToolError) Error() string { return e.Err.Error() }
func (e *ToolError) Unwrap() error { return e.Err }

// liveServer is the runtime record for one running child, plus the
// concurrency control that keeps calls against it single-outstanding
// and serializes eviction against an in-flight call.
type liveServer struct {
	spec        *ServerSpec
	client      *mcprpc.Client
	startedAt   time.Time
	autoStarted bool

	mu      sync.Mutex
	stopped bool
}

// EnvResolver resolves a ServerSpec's environment before the
// supervisor spawns its child — e.g. internal/credentials.TokenStore
// turning an "oauth:<provider>" placeholder into a live bearer token.
// A nil resolver (the default) passes env through unchanged.
type EnvResolver func(ctx context.Context, env map[string]string) (map[string]string, error)

// Registry is the process-wide server-id -> LiveServer map. One mutex
// guards membership; the per-entry mutex on liveServer guards the
// single blocking MCP exchange, so operations against distinct
// server-ids never wait on each other.
type Registry struct {
	mu             sync.Mutex
	servers        map[string]*liveServer
	pending        map[string]bool
	autoStartedIds map[string]bool
	startTimes     map[string]time.Time
	maxServers     int
	resolveEnv     EnvResolver
}

// New creates an empty registry. maxServers <= 0 means unbounded.
func New(maxServers int) *Registry {
	return &Registry{
		servers:        make(map[string]*liveServer),
		pending:        make(map[string]bool),
		autoStartedIds: make(map[string]bool),
		startTimes:     make(map[string]time.Time),
		maxServers:     maxServers,
	}
}

// SetEnvResolver installs the resolver StartServer consults before
// every spawn. Passing nil restores pass-through behavior.
func (r *Registry) SetEnvResolver(resolver EnvResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveEnv = resolver
}

// StartServer starts a new MCP server under id using commandLine (the
// already-built "command arg1 arg2..." string), unless id is already
// present or being started concurrently. spec may be nil for an
// ad-hoc raw-command start.
func (r *Registry) StartServer(ctx context.Context, id string, spec *ServerSpec, commandLine string, env map[string]string, autoStart bool) (StartOutcome, error) {
	r.mu.Lock()
	if _, ok := r.servers[id]; ok {
		r.mu.Unlock()
		return StartAlreadyRunning, nil
	}
	if r.pending[id] {
		r.mu.Unlock()
		return StartAlreadyRunning, nil
	}
	if r.maxServers > 0 && len(r.servers) >= r.maxServers {
		r.mu.Unlock()
		return StartExhausted, fmt.Errorf("maxServers limit (%d) reached", r.maxServers)
	}
	r.pending[id] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	command, args, err := mcprpc.SplitCommand(commandLine)
	if err != nil {
		return StartError, fmt.Errorf("invalid command for %q: %w", id, err)
	}

	r.mu.Lock()
	resolver := r.resolveEnv
	r.mu.Unlock()
	if resolver != nil {
		resolvedEnv, err := resolver(ctx, env)
		if err != nil {
			return StartError, fmt.Errorf("resolving environment for %q: %w", id, err)
		}
		env = resolvedEnv
	}

	client := mcprpc.New(command, args)
	if err := client.Start(ctx, env); err != nil {
		return StartError, err
	}

	entry := &liveServer{
		spec:        spec,
		client:      client,
		startedAt:   time.Now(),
		autoStarted: autoStart,
	}

	r.mu.Lock()
	r.servers[id] = entry
	r.startTimes[id] = entry.startedAt
	if autoStart {
		r.autoStartedIds[id] = true
	}
	r.mu.Unlock()

	logger.AddLog("INFO", fmt.Sprintf("started server %q (%s)", id, commandLine))
	return StartOK, nil
}

// StopServer removes id from the registry and terminates its child.
// Returns ErrNotRunning if id is absent. autoStartedIds membership is
// left untouched for an auto-started entry: it is the health
// monitor's restart-eligibility set (§3's "autoStartedIds ⊆
// keys(Registry) ∪ (recently evicted but pending restart)"), not a
// mirror of registry liveness, so a stopped auto-started server stays
// eligible for the next sweep. An on-demand entry's id is dropped from
// the set; that is a no-op unless the id was auto-started earlier and
// then restarted on demand after an eviction.
func (r *Registry) StopServer(id string) error {
	r.mu.Lock()
	entry, ok := r.servers[id]
	if ok {
		delete(r.servers, id)
		if !entry.autoStarted {
			delete(r.autoStartedIds, id)
		}
		delete(r.startTimes, id)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.stopped {
		entry.stopped = true
		entry.client.Stop()
		logger.AddLog("INFO", fmt.Sprintf("stopped server %q", id))
	}
	return nil
}

// StopAll terminates every running child. Best-effort: per-child
// errors are swallowed, matching spec.md §4.2.
func (r *Registry) StopAll() {
	r.mu.Lock()
	entries := make(map[string]*liveServer, len(r.servers))
	for id, e := range r.servers {
		entries[id] = e
	}
	r.servers = make(map[string]*liveServer)
	r.autoStartedIds = make(map[string]bool)
	r.startTimes = make(map[string]time.Time)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, entry := range entries {
		wg.Add(1)
		go func(id string, e *liveServer) {
			defer wg.Done()
			e.mu.Lock()
			defer e.mu.Unlock()
			if !e.stopped {
				e.stopped = true
				e.client.Stop()
			}
		}(id, entry)
	}
	wg.Wait()
}

// lookup returns the live entry for id without holding the registry
// lock across the borrower's use of it.
func (r *Registry) lookup(id string) (*liveServer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.servers[id]
	return e, ok
}

// evict removes id from the registry after a failed exchange. The
// entry must already be locked (entry.mu) by the caller. Crash
// eviction never drops id from autoStartedIds: §4.4 requires a
// crashed auto-started server to be restarted on the next monitor
// tick, which only scans that set, so membership in it must survive
// the server's removal from the live map.
func (r *Registry) evict(id string) {
	r.mu.Lock()
	delete(r.servers, id)
	delete(r.startTimes, id)
	r.mu.Unlock()
}

// CallTool invokes tool on id's client. On failure the entry is
// atomically evicted and the error carries Retryable=true: a fresh
// start is always the recovery path.
func (r *Registry) CallTool(id, tool string, arguments interface{}) (mcprpc.JsonValue, error) {
	entry, ok := r.lookup(id)
	if !ok {
		return nil, ErrNotRunning
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.stopped {
		return nil, ErrNotRunning
	}

	result, err := entry.client.CallTool(tool, arguments)
	if err != nil {
		entry.stopped = true
		entry.client.Stop()
		r.evict(id)
		logger.AddLog("WARN", fmt.Sprintf("server %q evicted after call failure: %v", id, err))
		return nil, &ToolError{Err: err, Retryable: true}
	}
	return result, nil
}

// ListTools lists id's tools. Same eviction behavior as CallTool.
func (r *Registry) ListTools(id string) ([]mcprpc.Tool, error) {
	entry, ok := r.lookup(id)
	if !ok {
		return nil, ErrNotRunning
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.stopped {
		return nil, ErrNotRunning
	}

	tools, err := entry.client.ListTools()
	if err != nil {
		entry.stopped = true
		entry.client.Stop()
		r.evict(id)
		logger.AddLog("WARN", fmt.Sprintf("server %q evicted after list failure: %v", id, err))
		return nil, &ToolError{Err: err, Retryable: true}
	}
	return tools, nil
}

// ServerToolList is one server's tool listing within ListAllTools.
type ServerToolList struct {
	Tools []mcprpc.Tool
	Count int
	Error string
}

// ListAllTools lists tools for every currently running server. Per
// spec.md §9's explicit decision, failures evict silently — the
// failed server is simply absent from the result map, matching the
// observed source behavior rather than surfacing a per-server error.
func (r *Registry) ListAllTools() map[string]ServerToolList {
	r.mu.Lock()
	ids := make([]string, 0, len(r.servers))
	for id := range r.servers {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	result := make(map[string]ServerToolList, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			tools, err := r.ListTools(id)
			if err != nil {
				return
			}
			mu.Lock()
			result[id] = ServerToolList{Tools: tools, Count: len(tools)}
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return result
}

// ServerStatus is one server's entry within Status.
type ServerStatus struct {
	ID          string
	AutoStarted bool
	Uptime      time.Duration
}

// Status partitions currently running servers into auto-started and
// on-demand, each with its derived uptime.
func (r *Registry) Status() []ServerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]ServerStatus, 0, len(r.servers))
	now := time.Now()
	for id := range r.servers {
		st, ok := r.startTimes[id]
		var uptime time.Duration
		if ok {
			uptime = now.Sub(st)
		}
		result = append(result, ServerStatus{
			ID:          id,
			AutoStarted: r.autoStartedIds[id],
			Uptime:      uptime,
		})
	}
	return result
}

// AutoStartedIDs returns a snapshot of ids started by the initializer
// (used by the health monitor to detect missing ones).
func (r *Registry) AutoStartedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.autoStartedIds))
	for id := range r.autoStartedIds {
		ids = append(ids, id)
	}
	return ids
}

// IsRunning reports whether id is currently present in the registry.
func (r *Registry) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.servers[id]
	return ok
}

// Spec returns the ServerSpec a running entry was started with, if any.
func (r *Registry) Spec(id string) (*ServerSpec, bool) {
	entry, ok := r.lookup(id)
	if !ok || entry.spec == nil {
		return nil, false
	}
	return entry.spec, true
}

// Count returns the number of currently running servers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.servers)
}
