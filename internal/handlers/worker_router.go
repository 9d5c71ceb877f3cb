package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studyprogress/internal/config"
	"studyprogress/internal/middleware"
	"studyprogress/internal/observability"
	"studyprogress/internal/version"
	"studyprogress/internal/worker"
)

// WorkerServiceName identifies the worker in traces and the route listing
const WorkerServiceName = "studyprogress-worker"

// WorkerStatusProvider is the read side of the background worker
type WorkerStatusProvider interface {
	IsReady() bool
	GetInstance() string
	GetStatus() worker.Status
	GetHistory() []worker.RunRecord
}

// NewWorkerRouter creates the worker's health and status router.
// The caller wraps it in otelhttp, so it carries no tracing middleware of its own.
func NewWorkerRouter(cfg *config.Config, w WorkerStatusProvider, logger *observability.Logger) *gin.Engine {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(middleware.ErrorRecoveryMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		if !w.IsReady() {
			middleware.ServiceUnavailable(c, "worker scheduler is not running")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": WorkerServiceName, "instance": w.GetInstance()})
	})

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			info := version.Info()
			c.JSON(http.StatusOK, gin.H{
				"service":    WorkerServiceName,
				"version":    info["version"],
				"commit":     info["commit"],
				"build_time": info["build_time"],
			})
		})

		v1.GET("/worker/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"instance": w.GetInstance(),
				"status":   w.GetStatus(),
			})
		})

		v1.GET("/worker/history", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"history": w.GetHistory()})
		})
	}

	routeListing := NewRouteListingHandler(WorkerServiceName)
	router.GET("/", routeListing.GetRouteListingJSON)
	routeListing.CollectRoutes(router)

	return router
}
