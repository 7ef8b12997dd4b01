package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/promptflows"
	"github.com/drewano/VocalAlchemy/internal/shared/config"
	"github.com/drewano/VocalAlchemy/internal/shared/metrics"
	"github.com/drewano/VocalAlchemy/internal/shared/server/middleware"
	"github.com/drewano/VocalAlchemy/internal/shared/server/respond"
)

// RouterDeps holds the handlers the router wires up.
type RouterDeps struct {
	Config          config.Config
	AnalysesHandler *analyses.Handler
	FlowsHandler    *promptflows.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(middleware.Identity())
	if deps.AnalysesHandler != nil {
		deps.AnalysesHandler.RegisterRoutes(api)
	}
	if deps.FlowsHandler != nil {
		deps.FlowsHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
