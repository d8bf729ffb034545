// Package executor runs prompts through the command-line agent and supervises
// the resulting process until exactly one terminal outcome is produced.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/events"
	"github.com/promptgate/promptgate/internal/events/bus"
	"github.com/promptgate/promptgate/internal/gateway/auth"
	"github.com/promptgate/promptgate/internal/history"
)

const eventSource = "promptgate-gateway"

// Request is one execution request after transport decoding.
type Request struct {
	// Prompt is the user prompt, passed to the agent verbatim.
	Prompt string

	// Context is optional free-form text injected ahead of the prompt.
	Context string
}

// Executor owns the agent binary configuration and the boot-time credential
// state, and runs one supervised child per request.
type Executor struct {
	cfg     config.GatewayConfig
	state   auth.State
	bus     bus.EventBus
	history history.Repository
	logger  *logger.Logger

	// baseEnv is the parent environment inherited by every child before the
	// credential variables are rewritten. Injected for testability.
	baseEnv []string
}

// New creates an executor for the given agent configuration and credential
// state.
func New(cfg config.GatewayConfig, state auth.State, eventBus bus.EventBus, repo history.Repository, baseEnv []string, log *logger.Logger) *Executor {
	return &Executor{
		cfg:     cfg,
		state:   state,
		bus:     eventBus,
		history: repo,
		logger:  log.WithFields(zap.String("component", "executor")),
		baseEnv: baseEnv,
	}
}

// Run executes one prompt through the agent and blocks until the single
// terminal outcome.
//
// The returned error covers request preconditions only (empty prompt, no
// credentials); once a spawn is attempted, every way the execution can end,
// spawn failure included, is reported as a Result. The sink, when non-nil,
// receives live output chunks as they arrive.
func (x *Executor) Run(ctx context.Context, req Request, sink OutputSink) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.BadRequest("prompt must not be empty")
	}

	// Mode is re-derived on every request: subscription tokens can expire
	// between requests without a restart.
	mode := auth.SelectMode(x.state, time.Now())
	if mode == auth.ModeNone {
		return nil, errors.NoCredentials()
	}

	executionID := uuid.New().String()
	startedAt := time.Now()
	log := x.logger.WithExecutionID(executionID)

	args := BuildArgs(prompt, req.Context)
	env := BuildEnv(x.baseEnv, mode, x.state)

	cmd, streams, err := launch(x.cfg.AgentBinary, args, env)
	if err != nil {
		log.Error("agent process failed to spawn",
			zap.String("binary", x.cfg.AgentBinary),
			zap.Error(err))

		result := &Result{
			ExecutionID: executionID,
			Outcome:     OutcomeSpawnError,
			AuthMode:    mode,
			ElapsedMs:   time.Since(startedAt).Milliseconds(),
			Reason:      err.Error(),
		}
		x.publish(ctx, events.ExecutionSpawnFail, executionID, map[string]interface{}{
			"reason":   err.Error(),
			"authMode": string(mode),
		})
		x.record(ctx, prompt, startedAt, result)
		return result, nil
	}

	log.Info("agent process spawned",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("auth_mode", string(mode)))
	x.publish(ctx, events.ExecutionSpawned, executionID, map[string]interface{}{
		"pid":      cmd.Process.Pid,
		"authMode": string(mode),
	})

	exec := &execution{
		id:        executionID,
		mode:      mode,
		startedAt: startedAt,
		cmd:       cmd,
		stdout:    newOutputBuffer(x.cfg.BufferMaxBytes),
		stderr:    newOutputBuffer(x.cfg.BufferMaxBytes),
		sink:      sink,
		done:      make(chan *Result, 1),
		logger:    log,
		onWarn: func(elapsed time.Duration) {
			x.publish(ctx, events.ExecutionWarned, executionID, map[string]interface{}{
				"elapsedMs": elapsed.Milliseconds(),
			})
		},
	}

	result := <-exec.supervise(streams, x.cfg.WarnAfter(), x.cfg.KillAfter())

	subject := events.ExecutionCompleted
	if result.Outcome == OutcomeTimeout {
		subject = events.ExecutionTimeout
	}
	x.publish(ctx, subject, executionID, map[string]interface{}{
		"outcome":   string(result.Outcome),
		"exitCode":  result.ExitCode,
		"elapsedMs": result.ElapsedMs,
	})
	x.record(ctx, prompt, startedAt, result)

	log.Info("execution resolved",
		zap.String("outcome", string(result.Outcome)),
		zap.Int64("elapsed_ms", result.ElapsedMs))
	return result, nil
}

// publish emits a lifecycle event, logging delivery failures without failing
// the execution.
func (x *Executor) publish(ctx context.Context, subject, executionID string, data map[string]interface{}) {
	data["executionId"] = executionID
	event := bus.NewEvent(subject, eventSource, data)
	if err := x.bus.Publish(ctx, subject, event); err != nil {
		x.logger.Warn("failed to publish lifecycle event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// record persists the execution outcome. History is best-effort: a storage
// failure never alters the result returned to the caller.
func (x *Executor) record(ctx context.Context, prompt string, startedAt time.Time, result *Result) {
	if x.history == nil {
		return
	}

	record := &history.Record{
		ID:          result.ExecutionID,
		Prompt:      prompt,
		Outcome:     string(result.Outcome),
		AuthMode:    string(result.AuthMode),
		ExitCode:    result.ExitCode,
		ElapsedMs:   result.ElapsedMs,
		Response:    result.Text,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
	if appErr := result.Err(); appErr != nil {
		record.Error = appErr.Message
	}

	if err := x.history.Save(ctx, record); err != nil {
		x.logger.Warn("failed to record execution history",
			zap.String("execution_id", result.ExecutionID),
			zap.Error(err))
	}
}
