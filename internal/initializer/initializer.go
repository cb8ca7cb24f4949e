// Package initializer runs the daemon's auto-start sequence at boot:
// bounded parallel batches of ServerSpec starts, each with its own
// deadline, with a typed failure policy distinguishing required from
// optional servers.
//
// Grounded on mcp-scooter's DiscoveryEngine.monitor goroutine pattern
// (internal/domain/discovery/discovery.go) for the batched-background-
// work shape, generalized from a single unload sweep into the
// structured-concurrency batch runner spec.md §9 calls for: a batch is
// a scoped group where every task has its own deadline and the batch
// has one too.
package initializer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcp-scooter/mcpgate/internal/logger"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// FailurePolicy is DaemonSettings.OnInitFailure.
type FailurePolicy string

const (
	PolicyFail   FailurePolicy = "fail"
	PolicyWarn   FailurePolicy = "warn"
	PolicyIgnore FailurePolicy = "ignore"
)

// ServerResult is one server's outcome within an InitializationResult.
type ServerResult struct {
	Name     string
	Success  bool
	Error    string
	Duration time.Duration
	Optional bool
}

// Result summarizes one full initialization run.
type Result struct {
	Total            int
	Successful       int
	Failed           int
	OptionalFailures int
	Details          []ServerResult
}

// BuildCommand joins a ServerSpec's command and args into the single
// command-line string the registry's StartServer expects.
func BuildCommand(spec registry.ServerSpec) string {
	cmd := spec.Command
	for _, a := range spec.Args {
		cmd += " " + a
	}
	return cmd
}

// Run starts every autoStart=true server in specs, in batches of
// batchWidth, each server bounded by perServerTimeout and each batch
// bounded by the same wall-clock deadline. It returns once every batch
// has completed or timed out. The iteration order of specs is
// preserved as submission order within batches.
func Run(ctx context.Context, reg *registry.Registry, specs []registry.ServerSpec, batchWidth int, perServerTimeout time.Duration, policy FailurePolicy) (Result, error) {
	var autoStart []registry.ServerSpec
	for _, s := range specs {
		if s.AutoStart {
			autoStart = append(autoStart, s)
		}
	}

	if len(autoStart) == 0 {
		return Result{Total: 0}, nil
	}

	if batchWidth < 1 {
		batchWidth = 1
	}

	result := Result{Total: len(autoStart)}

	for start := 0; start < len(autoStart); start += batchWidth {
		end := start + batchWidth
		if end > len(autoStart) {
			end = len(autoStart)
		}
		batch := autoStart[start:end]

		batchCtx, cancel := context.WithTimeout(ctx, perServerTimeout)
		details := runBatch(batchCtx, reg, batch, perServerTimeout, policy)
		cancel()

		for _, d := range details {
			result.Details = append(result.Details, d)
			if d.Success {
				result.Successful++
			} else {
				result.Failed++
				if d.Optional {
					result.OptionalFailures++
				}
			}
		}
	}

	if err := applyPolicy(policy, result); err != nil {
		return result, err
	}
	return result, nil
}

// runBatch starts every server in batch concurrently, each bounded by
// its own per-server deadline, and waits for the whole batch (or the
// shared batch deadline, whichever comes first) before returning.
func runBatch(batchCtx context.Context, reg *registry.Registry, batch []registry.ServerSpec, perServerTimeout time.Duration, policy FailurePolicy) []ServerResult {
	results := make([]ServerResult, len(batch))
	var wg sync.WaitGroup

	for i, spec := range batch {
		wg.Add(1)
		go func(i int, spec registry.ServerSpec) {
			defer wg.Done()
			results[i] = startOne(batchCtx, reg, spec, perServerTimeout, policy)
		}(i, spec)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-batchCtx.Done():
		// Past the batch deadline the shared context is done, which
		// kills any child still handshaking (its command is bound to
		// that context), so its start returns an error promptly. Wait
		// for those goroutines so every result slot is filled.
		<-done
	}

	return results
}

func startOne(ctx context.Context, reg *registry.Registry, spec registry.ServerSpec, timeout time.Duration, policy FailurePolicy) ServerResult {
	serverCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	specCopy := spec
	env := spec.Env
	outcome, err := reg.StartServer(serverCtx, spec.Name, &specCopy, BuildCommand(spec), env, true)
	duration := time.Since(started)

	result := ServerResult{Name: spec.Name, Duration: duration, Optional: spec.Optional}
	switch {
	case err != nil:
		result.Success = false
		result.Error = err.Error()
	case outcome == registry.StartOK, outcome == registry.StartAlreadyRunning:
		result.Success = true
	default:
		result.Success = false
		result.Error = "start failed"
	}

	level := "INFO"
	if !result.Success {
		level = levelFor(policy, spec.Optional)
	}
	logger.AddLog(level, fmt.Sprintf("init %s: success=%v duration=%s", spec.Name, result.Success, duration))

	return result
}

func levelFor(policy FailurePolicy, optional bool) string {
	if policy == PolicyIgnore {
		return "DEBUG"
	}
	if optional {
		return "WARN"
	}
	return "ERROR"
}

// applyPolicy enforces §4.3's failure policy: fail aborts startup on
// any required-server failure; warn and ignore only change log level,
// already applied by startOne, and always continue.
func applyPolicy(policy FailurePolicy, result Result) error {
	if policy != PolicyFail {
		return nil
	}
	for _, d := range result.Details {
		if !d.Success && !d.Optional {
			return fmt.Errorf("required server %q failed to initialize: %s", d.Name, d.Error)
		}
	}
	return nil
}
