package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"studyprogress/internal/config"
	"studyprogress/internal/middleware"
	"studyprogress/internal/models"
	"studyprogress/internal/observability"
	"studyprogress/internal/services"
	"studyprogress/internal/version"
)

// ServiceName identifies the API server in traces and the route listing
const ServiceName = "studyprogress-server"

// NewRouter creates the API router with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	sessionService services.SessionServiceInterface,
	quizService services.QuizServiceInterface,
	difficultyService services.DifficultyServiceInterface,
	goalService services.GoalServiceInterface,
	schemas *middleware.SchemaLoader,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin mode
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(logger))
	router.Use(middleware.ErrorRecoveryMiddleware(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})

	router.Use(observability.GinMiddleware(ServiceName))
	router.Use(observability.ErrorSpanMiddleware())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	// Identity comes from the cookie session written by the external auth service
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.IsDevelopment = cfg.Server.Debug
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	sessionHandler := NewSessionHandler(sessionService, logger)
	quizHandler := NewQuizHandler(quizService, logger)
	difficultyHandler := NewDifficultyHandler(difficultyService, difficultyDefaults(cfg.Engine.Difficulty), logger)
	goalHandler := NewGoalHandler(goalService, logger)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			info := version.Info()
			c.JSON(http.StatusOK, gin.H{
				"service":    ServiceName,
				"version":    info["version"],
				"commit":     info["commit"],
				"build_time": info["build_time"],
			})
		})

		authed := v1.Group("")
		authed.Use(middleware.RequireAuth())
		authed.Use(middleware.RequestValidationMiddleware(schemas, logger))
		{
			sessionsGroup := authed.Group("/sessions")
			{
				sessionsGroup.POST("", sessionHandler.StartSession)
				sessionsGroup.POST("/restore", sessionHandler.Restore)
				sessionsGroup.GET("/current", sessionHandler.GetCurrentSession)
				sessionsGroup.POST("/current/toggle-pause", sessionHandler.TogglePause)
				sessionsGroup.POST("/current/end", sessionHandler.EndSession)
				sessionsGroup.PUT("/current/activity", sessionHandler.SetActivity)
			}

			authed.POST("/reviews", sessionHandler.RecordReview)

			quizzes := authed.Group("/quizzes")
			{
				quizzes.POST("", quizHandler.StartQuiz)
				quizzes.GET("/current", quizHandler.GetCurrentQuiz)
				quizzes.POST("/current/answers", quizHandler.SubmitAnswer)
			}

			authed.POST("/difficulty/profile", difficultyHandler.CalculateProfile)
			authed.POST("/item-sets/:id/recalibrate", difficultyHandler.RecalibrateItemSet)

			goals := authed.Group("/goals")
			{
				goals.GET("/notifications", goalHandler.GetNotifications)
				goals.POST("/bulk", goalHandler.BulkAction)
			}
		}
	}

	routeListing := NewRouteListingHandler(ServiceName)
	router.GET("/", routeListing.GetRouteListingJSON)
	routeListing.CollectRoutes(router)

	return router
}

func difficultyDefaults(cfg config.DifficultyConfig) models.DifficultySettings {
	return models.DifficultySettings{
		Aggressiveness:    models.Aggressiveness(cfg.Aggressiveness),
		AdaptationSpeed:   cfg.AdaptationSpeed,
		MinimumDataPoints: cfg.MinimumDataPoints,
	}
}

// requestLogger logs every request through the observability logger, at a level following the status code
func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			fields["http.error_type"] = "server_error"
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			fields["http.error_type"] = "client_error"
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}
