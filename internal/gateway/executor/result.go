package executor

import (
	"strings"
	"unicode/utf8"

	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/gateway/auth"
)

// Outcome classifies how an execution terminated.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFailure    Outcome = "failure"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeSpawnError Outcome = "spawn_error"
)

// maxExcerptBytes caps the stderr excerpt carried in failure results.
const maxExcerptBytes = 4096

// Result is the single, immutable outcome of an execution. Exactly one
// Result is produced per accepted request.
type Result struct {
	ExecutionID string
	Outcome     Outcome
	AuthMode    auth.Mode
	ElapsedMs   int64

	// Text holds the trimmed stdout on success.
	Text string

	// ExitCode and StderrExcerpt are set on non-zero-exit failures.
	ExitCode      int
	StderrExcerpt string

	// Reason is set when the process never started.
	Reason string
}

// Err maps a non-success result onto the application error taxonomy for the
// HTTP layer. Success returns nil.
func (r *Result) Err() *errors.AppError {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeFailure:
		return errors.ExecutionFailed(r.ExitCode, r.StderrExcerpt)
	case OutcomeTimeout:
		return errors.ExecutionTimeout(r.ElapsedMs)
	case OutcomeSpawnError:
		return errors.SpawnFailed(r.Reason)
	default:
		return errors.InternalError("unknown execution outcome", nil)
	}
}

// aggregate maps a terminated child's exit status and captured streams to the
// final result. Exit 0 yields success with trimmed stdout; any other exit
// yields failure carrying stderr, or stdout when stderr is empty.
func aggregate(executionID string, mode auth.Mode, exitCode int, stdout, stderr string, elapsedMs int64) *Result {
	if exitCode == 0 {
		return &Result{
			ExecutionID: executionID,
			Outcome:     OutcomeSuccess,
			AuthMode:    mode,
			ElapsedMs:   elapsedMs,
			Text:        strings.TrimSpace(stdout),
		}
	}

	excerptSource := stderr
	if excerptSource == "" {
		excerptSource = stdout
	}

	return &Result{
		ExecutionID:   executionID,
		Outcome:       OutcomeFailure,
		AuthMode:      mode,
		ElapsedMs:     elapsedMs,
		ExitCode:      exitCode,
		StderrExcerpt: excerpt(excerptSource),
	}
}

// excerpt trims and caps diagnostic output carried back to the caller. The
// cut backs off to a rune boundary so the excerpt stays valid UTF-8.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerptBytes {
		return s
	}
	cut := maxExcerptBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
