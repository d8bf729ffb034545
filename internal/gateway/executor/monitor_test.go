package executor

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/gateway/auth"
)

// newIdleExecution builds an execution with both timers armed far in the
// future, so tests drive the terminal transitions by hand.
func newIdleExecution() *execution {
	e := &execution{
		id:        "exec-test",
		mode:      auth.ModeAPIKey,
		startedAt: time.Now(),
		stdout:    newOutputBuffer(0),
		stderr:    newOutputBuffer(0),
		done:      make(chan *Result, 1),
		logger:    logger.Default(),
	}
	e.warnTimer = time.AfterFunc(time.Hour, e.softWarn)
	e.killTimer = time.AfterFunc(time.Hour, e.hardKill)
	return e
}

func assertNoSecondResult(t *testing.T, e *execution) {
	t.Helper()
	select {
	case extra := <-e.done:
		t.Fatalf("execution resolved twice, extra outcome %q", extra.Outcome)
	default:
	}
}

func TestExecutionHardKillWinsOverLateExit(t *testing.T) {
	e := newIdleExecution()

	e.hardKill()
	// The killed child's exit status arrives afterwards; it must be ignored.
	e.resolveExit(0)

	result := <-e.done
	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assertNoSecondResult(t, e)

	// The soft timer was cancelled when the hard deadline resolved.
	assert.False(t, e.warnTimer.Stop())
}

func TestExecutionExitCancelsBothTimers(t *testing.T) {
	e := newIdleExecution()
	e.stdout.append("answer\n")

	e.resolveExit(0)

	result := <-e.done
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "answer", result.Text)

	// Both timers were stopped on resolution; Stop on a cancelled timer
	// reports false.
	assert.False(t, e.warnTimer.Stop())
	assert.False(t, e.killTimer.Stop())

	// A hard deadline racing in afterwards is a no-op.
	e.hardKill()
	assertNoSecondResult(t, e)
}

func TestExecutionSoftWarnAfterResolutionIsNoOp(t *testing.T) {
	e := newIdleExecution()
	warned := false
	e.onWarn = func(time.Duration) { warned = true }

	e.resolveExit(0)
	e.softWarn()

	assert.False(t, warned)
}

func TestLateOutputNotForwardedAfterResolution(t *testing.T) {
	e := newIdleExecution()
	sinkCalls := 0
	e.sink = func(_, _ string) { sinkCalls++ }

	e.hardKill()
	result := <-e.done
	require.Equal(t, OutcomeTimeout, result.Outcome)

	// A reader draining leftover pipe output after the kill buffers the
	// chunk but never forwards it to the sink.
	e.readers.Add(1)
	e.readOutput(io.NopCloser(strings.NewReader("late chunk")), "stdout", e.stdout)

	assert.Zero(t, sinkCalls)
	assert.Equal(t, "late chunk", e.stdout.String())
}
