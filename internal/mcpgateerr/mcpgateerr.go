// Package mcpgateerr classifies errors into the taxonomy of spec.md
// §7, each with a user-facing hint.
//
// Grounded on mcp-scooter's internal/cli/errors.Classify: string-match
// classification of an opaque error into a small enum with a hint,
// generalized from the teacher's HTTP/auth-flavored kinds into the
// protocol/transport/child/resource/policy taxonomy this daemon needs.
package mcpgateerr

import "strings"

// Kind is one category of spec.md §7's error taxonomy.
type Kind string

const (
	KindProtocol    Kind = "protocol-violation"
	KindTransport   Kind = "transport-failure"
	KindChild       Kind = "child-failure"
	KindExhausted   Kind = "resource-exhaustion"
	KindPolicy      Kind = "policy-failure"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindMalformed   Kind = "malformed"
	KindOther       Kind = "other"
)

// Classified wraps an error with its taxonomy kind, a retry hint, and
// a user-facing message.
type Classified struct {
	Kind      Kind
	Message   string
	Hint      string
	Retryable bool
	Raw       error
}

func (e Classified) Error() string { return e.Message }
func (e Classified) Unwrap() error { return e.Raw }

// Classify maps an opaque error (typically returned by the registry or
// the IPC client) onto the taxonomy.
func Classify(err error) Classified {
	if err == nil {
		return Classified{}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "maxservers") || strings.Contains(msg, "limit") && strings.Contains(msg, "reached"):
		return Classified{
			Kind:    KindExhausted,
			Message: err.Error(),
			Hint:    "The daemon has reached its configured server limit.",
			Raw:     err,
		}
	case strings.Contains(msg, "not running") || strings.Contains(msg, "notrunning"):
		return Classified{
			Kind:    KindProtocol,
			Message: err.Error(),
			Hint:    "That server is not currently running; start it first.",
			Raw:     err,
		}
	case strings.Contains(msg, "no such file") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "eof before response"):
		return Classified{
			Kind:    KindUnavailable,
			Message: err.Error(),
			Hint:    "Is the daemon running? Try 'mcpgate daemon status' or 'mcpgate daemon start'.",
			Raw:     err,
		}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return Classified{
			Kind:      KindTimeout,
			Message:   err.Error(),
			Hint:      "The request took too long; the server may be overloaded or wedged.",
			Retryable: true,
			Raw:       err,
		}
	case strings.Contains(msg, "invalid json") || strings.Contains(msg, "malformed") || strings.Contains(msg, "unmarshal"):
		return Classified{
			Kind:    KindMalformed,
			Message: err.Error(),
			Hint:    "The response could not be parsed; this usually indicates a protocol mismatch.",
			Raw:     err,
		}
	case strings.Contains(msg, "exit status") || strings.Contains(msg, "no response from server") || strings.Contains(msg, "handshake"):
		return Classified{
			Kind:      KindChild,
			Message:   err.Error(),
			Hint:      "The MCP server process exited or failed its handshake; a retry will restart it.",
			Retryable: true,
			Raw:       err,
		}
	case strings.Contains(msg, "required server") && strings.Contains(msg, "failed"):
		return Classified{
			Kind:    KindPolicy,
			Message: err.Error(),
			Hint:    "A required server failed to initialize under the 'fail' policy; the daemon did not start.",
			Raw:     err,
		}
	default:
		return Classified{
			Kind:    KindOther,
			Message: err.Error(),
			Hint:    "An unexpected error occurred.",
			Raw:     err,
		}
	}
}
