// Package v1 defines the public wire types of the Promptgate API.
package v1

import "time"

// ExecutionOutcome classifies how an execution terminated.
type ExecutionOutcome string

const (
	ExecutionSuccess    ExecutionOutcome = "success"
	ExecutionFailure    ExecutionOutcome = "failure"
	ExecutionTimeout    ExecutionOutcome = "timeout"
	ExecutionSpawnError ExecutionOutcome = "spawn_error"
)

// AuthMode is the credential mode an execution ran under.
type AuthMode string

const (
	AuthModeSubscription AuthMode = "subscription"
	AuthModeAPIKey       AuthMode = "api_key"
	AuthModeNone         AuthMode = "none"
)

// Execution represents a recorded execution in API responses.
type Execution struct {
	ID          string           `json:"id"`
	Prompt      string           `json:"prompt"`
	Outcome     ExecutionOutcome `json:"outcome"`
	AuthMode    AuthMode         `json:"auth_mode"`
	ExitCode    int              `json:"exit_code"`
	ElapsedMs   int64            `json:"elapsed_ms"`
	Response    string           `json:"response,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Stream frame types for the WebSocket run endpoint.
const (
	FrameStdout = "stdout"
	FrameStderr = "stderr"
	FrameResult = "result"
)

// StreamFrame is one message on the WebSocket run stream. Output frames carry
// Data; the terminal result frame carries the remaining fields.
type StreamFrame struct {
	Type     string   `json:"type"`
	Data     string   `json:"data,omitempty"`
	Success  bool     `json:"success,omitempty"`
	Response string   `json:"response,omitempty"`
	AuthMode AuthMode `json:"authMode,omitempty"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}
