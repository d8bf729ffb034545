package api

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/assets"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/gateway/auth"
	"github.com/promptgate/promptgate/internal/gateway/executor"
	"github.com/promptgate/promptgate/internal/history"
	v1 "github.com/promptgate/promptgate/pkg/api/v1"
)

// Handler contains the HTTP handlers of the gateway API.
type Handler struct {
	executor *executor.Executor
	assets   assets.Store
	history  history.Repository
	state    auth.State
	logger   *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(exec *executor.Executor, store assets.Store, repo history.Repository, state auth.State, log *logger.Logger) *Handler {
	return &Handler{
		executor: exec,
		assets:   store,
		history:  repo,
		state:    state,
		logger:   log.WithFields(zap.String("component", "api")),
	}
}

// Run executes a prompt through the agent and returns the captured output.
// POST /run
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.BadRequest(err.Error()))
		return
	}

	result, err := h.executor.Run(c.Request.Context(), executor.Request{
		Prompt:  req.Prompt,
		Context: req.Context,
	}, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	if appErr := result.Err(); appErr != nil {
		respondExecutionError(c, appErr, result)
		return
	}

	c.JSON(http.StatusOK, RunResponse{
		Success:     true,
		Response:    result.Text,
		AuthMode:    string(result.AuthMode),
		ExecutionID: result.ExecutionID,
	})
}

// Health reports service status and the auth mode a request would run under.
// It never invokes the gateway. GET /healthz
func (h *Handler) Health(c *gin.Context) {
	mode := auth.SelectMode(h.state, time.Now())
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		AuthMode: string(mode),
	})
}

// GetAsset looks up one named asset.
// GET /v1/skills/:name, /v1/agents/:name, /v1/frameworks/:name
func (h *Handler) GetAsset(kind assets.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		asset, err := h.assets.Get(c.Request.Context(), kind, name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, asset)
	}
}

// ListAssets enumerates one asset collection.
// GET /v1/skills, /v1/agents, /v1/frameworks
func (h *Handler) ListAssets(kind assets.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := h.assets.List(c.Request.Context(), kind)
		if err != nil {
			h.logger.Error("failed to list assets",
				zap.String("kind", string(kind)),
				zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, AssetListResponse{
			Kind:  string(kind),
			Names: names,
			Total: len(names),
		})
	}
}

// GetExecution retrieves one recorded execution.
// GET /v1/executions/:id
func (h *Handler) GetExecution(c *gin.Context) {
	record, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recordToResponse(record))
}

// ListExecutions returns recent executions, most recent first.
// GET /v1/executions?limit=N
func (h *Handler) ListExecutions(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, errors.BadRequest("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list executions", zap.Error(err))
		respondError(c, err)
		return
	}

	resp := ExecutionsListResponse{
		Executions: make([]*v1.Execution, len(records)),
		Total:      len(records),
	}
	for i, record := range records {
		resp.Executions[i] = recordToResponse(record)
	}
	c.JSON(http.StatusOK, resp)
}

func recordToResponse(r *history.Record) *v1.Execution {
	return &v1.Execution{
		ID:          r.ID,
		Prompt:      r.Prompt,
		Outcome:     v1.ExecutionOutcome(r.Outcome),
		AuthMode:    v1.AuthMode(r.AuthMode),
		ExitCode:    r.ExitCode,
		ElapsedMs:   r.ElapsedMs,
		Response:    r.Response,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// respondError writes the standard error body for an application error.
func respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError("An internal server error occurred", err)
	}
	c.JSON(appErr.HTTPStatus, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}

// respondExecutionError writes the error body for a resolved execution,
// carrying the outcome detail alongside code and message.
func respondExecutionError(c *gin.Context, appErr *errors.AppError, result *executor.Result) {
	c.JSON(appErr.HTTPStatus, gin.H{
		"error": gin.H{
			"code":        appErr.Code,
			"message":     appErr.Message,
			"outcome":     string(result.Outcome),
			"executionId": result.ExecutionID,
			"elapsedMs":   result.ElapsedMs,
		},
	})
}
