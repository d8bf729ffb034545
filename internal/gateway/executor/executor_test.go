package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/events/bus"
	"github.com/promptgate/promptgate/internal/gateway/auth"
	"github.com/promptgate/promptgate/internal/history"
)

// writeFakeAgent writes an executable shell script standing in for the agent
// binary. The script receives the standard argv, so "$4" is the prompt.
func writeFakeAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func apiKeyState() auth.State {
	return auth.State{APIKey: "sk-test-key"}
}

func newTestExecutor(t *testing.T, binary string, state auth.State) (*Executor, *history.MemoryRepository, *bus.MemoryEventBus) {
	t.Helper()
	cfg := config.GatewayConfig{
		AgentBinary:      binary,
		WarnAfterSeconds: 5,
		KillAfterSeconds: 10,
	}
	repo := history.NewMemoryRepository(0)
	eventBus := bus.NewMemoryEventBus(logger.Default())
	return New(cfg, state, eventBus, repo, []string{"PATH=/usr/bin:/bin"}, logger.Default()), repo, eventBus
}

func TestRunSuccess(t *testing.T) {
	binary := writeFakeAgent(t, `echo "4"`)
	exec, repo, _ := newTestExecutor(t, binary, apiKeyState())

	result, err := exec.Run(context.Background(), Request{Prompt: "What is 2+2?"}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "4", result.Text)
	assert.Equal(t, auth.ModeAPIKey, result.AuthMode)
	assert.Nil(t, result.Err())

	record, err := repo.Get(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "success", record.Outcome)
	assert.Equal(t, "4", record.Response)
}

func TestRunPassesPromptLiterally(t *testing.T) {
	// Echo back the fourth argument: --print --output-format text <prompt>.
	binary := writeFakeAgent(t, `printf '%s' "$4"`)
	exec, _, _ := newTestExecutor(t, binary, apiKeyState())

	prompt := `say "hello; rm -rf" $(not expanded)`
	result, err := exec.Run(context.Background(), Request{Prompt: prompt}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, prompt, result.Text)
}

func TestRunContextPrependedToPrompt(t *testing.T) {
	binary := writeFakeAgent(t, `printf '%s' "$4"`)
	exec, _, _ := newTestExecutor(t, binary, apiKeyState())

	result, err := exec.Run(context.Background(), Request{
		Prompt:  "summarize",
		Context: "background info",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "background info\n\nsummarize", result.Text)
}

func TestRunNonZeroExit(t *testing.T) {
	binary := writeFakeAgent(t, `echo "rate limited" >&2; exit 1`)
	exec, repo, _ := newTestExecutor(t, binary, apiKeyState())

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "rate limited", result.StderrExcerpt)

	appErr := result.Err()
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeExecutionFailed, appErr.Code)
	assert.Contains(t, appErr.Message, "rate limited")

	record, err := repo.Get(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "failure", record.Outcome)
}

func TestRunFailureFallsBackToStdout(t *testing.T) {
	binary := writeFakeAgent(t, `echo "only stdout detail"; exit 3`)
	exec, _, _ := newTestExecutor(t, binary, apiKeyState())

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "only stdout detail", result.StderrExcerpt)
}

func TestRunHardDeadlineKillsProcess(t *testing.T) {
	binary := writeFakeAgent(t, `echo "partial"; sleep 60`)
	exec, repo, _ := newTestExecutor(t, binary, apiKeyState())
	exec.cfg.WarnAfterSeconds = 0
	exec.cfg.KillAfterSeconds = 1

	start := time.Now()
	result, err := exec.Run(context.Background(), Request{Prompt: "hang"}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.Less(t, time.Since(start), 10*time.Second)

	appErr := result.Err()
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeExecutionTimeout, appErr.Code)

	record, err := repo.Get(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "timeout", record.Outcome)
}

func TestRunSpawnError(t *testing.T) {
	exec, repo, _ := newTestExecutor(t, "/nonexistent/agent-binary", apiKeyState())

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSpawnError, result.Outcome)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, result.Text)
	assert.Empty(t, result.StderrExcerpt)

	appErr := result.Err()
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeSpawnFailed, appErr.Code)

	record, err := repo.Get(context.Background(), result.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "spawn_error", record.Outcome)
}

func TestRunEmptyPromptRejectedWithoutSpawn(t *testing.T) {
	// A binary that would fail loudly if ever spawned.
	exec, repo, _ := newTestExecutor(t, "/nonexistent/agent-binary", apiKeyState())

	for _, prompt := range []string{"", "   ", "\n\t"} {
		result, err := exec.Run(context.Background(), Request{Prompt: prompt}, nil)
		assert.Nil(t, result)
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
	}

	records, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunNoCredentials(t *testing.T) {
	binary := writeFakeAgent(t, `echo ok`)
	exec, _, _ := newTestExecutor(t, binary, auth.State{})

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	assert.Nil(t, result)
	require.Error(t, err)

	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeNoCredentials, appErr.Code)
}

func TestRunExpiredSubscriptionFallsBackToAPIKey(t *testing.T) {
	binary := writeFakeAgent(t, `echo ok`)
	state := auth.State{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Now().Add(-time.Minute),
		APIKey:       "sk-fallback",
	}
	exec, _, _ := newTestExecutor(t, binary, state)

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, auth.ModeAPIKey, result.AuthMode)
}

func TestRunStreamsOutputToSink(t *testing.T) {
	binary := writeFakeAgent(t, `echo "chunk one"; echo "warning" >&2`)
	exec, _, _ := newTestExecutor(t, binary, apiKeyState())

	var mu sync.Mutex
	received := map[string]string{}
	sink := func(stream, data string) {
		mu.Lock()
		received[stream] += data
		mu.Unlock()
	}

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, sink)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, received["stdout"], "chunk one")
	assert.Contains(t, received["stderr"], "warning")
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	binary := writeFakeAgent(t, `echo done`)
	exec, _, eventBus := newTestExecutor(t, binary, apiKeyState())

	var mu sync.Mutex
	var subjects []string
	_, err := eventBus.Subscribe("execution.*", func(_ context.Context, event *bus.Event) error {
		mu.Lock()
		subjects = append(subjects, event.Type)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	result, err := exec.Run(context.Background(), Request{Prompt: "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"execution.spawned", "execution.completed"}, subjects)
}

func TestAggregateTrimsStdout(t *testing.T) {
	result := aggregate("id", auth.ModeAPIKey, 0, "  answer\n\n", "", 42)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "answer", result.Text)
	assert.Equal(t, int64(42), result.ElapsedMs)
}

func TestExcerptCapped(t *testing.T) {
	long := make([]byte, maxExcerptBytes*2)
	for i := range long {
		long[i] = 'x'
	}
	result := aggregate("id", auth.ModeAPIKey, 1, "", string(long), 1)
	assert.Len(t, result.StderrExcerpt, maxExcerptBytes)
}

func TestExcerptCapBacksOffToRuneBoundary(t *testing.T) {
	// A multi-byte rune straddles the cap; the cut must not split it.
	stderr := strings.Repeat("x", maxExcerptBytes-1) + "日本語"

	result := aggregate("id", auth.ModeAPIKey, 1, "", stderr, 1)

	assert.True(t, utf8.ValidString(result.StderrExcerpt))
	assert.LessOrEqual(t, len(result.StderrExcerpt), maxExcerptBytes)
	assert.Equal(t, maxExcerptBytes-1, len(result.StderrExcerpt))
}

func TestOutputBufferAppendsNeverReplaces(t *testing.T) {
	buf := newOutputBuffer(0)
	buf.append("first ")
	buf.append("second ")
	buf.append("third")
	assert.Equal(t, "first second third", buf.String())
}

func TestOutputBufferEvictsOldestWhenCapped(t *testing.T) {
	buf := newOutputBuffer(10)
	buf.append("aaaaa")
	buf.append("bbbbb")
	buf.append("ccccc")
	assert.Equal(t, "bbbbbccccc", buf.String())
}
