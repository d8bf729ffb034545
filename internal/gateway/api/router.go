package api

import (
	"github.com/gin-gonic/gin"

	"github.com/promptgate/promptgate/internal/assets"
	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/logger"
	"github.com/promptgate/promptgate/internal/gateway/auth"
	"github.com/promptgate/promptgate/internal/gateway/executor"
	"github.com/promptgate/promptgate/internal/history"
)

// SetupRouter builds the gin engine with all gateway routes and middleware.
// /healthz is mounted before the auth middleware and stays reachable without
// a token.
func SetupRouter(cfg *config.Config, exec *executor.Executor, store assets.Store, repo history.Repository, state auth.State, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(CORS())

	handler := NewHandler(exec, store, repo, state, log)

	router.GET("/healthz", handler.Health)

	authed := router.Group("/", BearerAuth(cfg.Auth.Token))
	{
		authed.POST("/run", handler.Run)

		v1Group := authed.Group("/v1")
		{
			v1Group.GET("/skills", handler.ListAssets(assets.KindSkill))
			v1Group.GET("/skills/:name", handler.GetAsset(assets.KindSkill))
			v1Group.GET("/agents", handler.ListAssets(assets.KindAgent))
			v1Group.GET("/agents/:name", handler.GetAsset(assets.KindAgent))
			v1Group.GET("/frameworks", handler.ListAssets(assets.KindFramework))
			v1Group.GET("/frameworks/:name", handler.GetAsset(assets.KindFramework))

			v1Group.GET("/executions", handler.ListExecutions)
			v1Group.GET("/executions/:id", handler.GetExecution)

			v1Group.GET("/run/stream", handler.StreamRun)
		}
	}

	return router
}
