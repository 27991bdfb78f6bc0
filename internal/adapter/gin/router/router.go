package router

import (
	"context"
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"social-graph-service/internal/adapter/gin/handler"
	"social-graph-service/internal/adapter/gin/middleware"
	"social-graph-service/internal/adapter/ratelimit"
)

// HealthCheck probes one backend; a nil error means it is reachable.
type HealthCheck func(ctx context.Context) error

// Options tunes router-wide behaviour.
type Options struct {
	ServiceName string
	Tracing     bool
	// Checks run on every /health request, keyed by backend name.
	Checks map[string]HealthCheck
}

// SetupRouter configures and returns a Gin router with all routes and middleware
func SetupRouter(
	userHandler *handler.UserHandler,
	followHandler *handler.FollowHandler,
	limiter *ratelimit.Limiter,
	log *zap.Logger,
	opts Options,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery(log))
	if opts.Tracing {
		router.Use(otelgin.Middleware(opts.ServiceName))
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health", health(opts))

	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimiter(limiter, log))
	{
		users := v1.Group("/users")
		{
			users.POST("", userHandler.CreateUser)
			users.GET("/search", userHandler.SearchUsers)
			users.GET("/username/:username", userHandler.GetUserByUsername)
			users.GET("/email/:email", userHandler.GetUserByEmail)
			users.GET("/:id", userHandler.GetUser)
			users.PUT("/:id", userHandler.UpdateProfile)
			users.DELETE("/:id", userHandler.DeleteUser)

			users.GET("/:id/followers", followHandler.ListFollowers)
			users.GET("/:id/following", followHandler.ListFollowing)
			users.POST("/:id/follow", followHandler.Follow)
			users.POST("/:id/unfollow", followHandler.Unfollow)
			users.GET("/:id/mutual/:other_id", followHandler.MutualFollowers)
		}
	}

	return router
}

func health(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		code, state := http.StatusOK, "healthy"
		backends := make(map[string]string, len(opts.Checks))
		for name, check := range opts.Checks {
			if err := check(c.Request.Context()); err != nil {
				backends[name] = err.Error()
				code, state = http.StatusServiceUnavailable, "degraded"
				continue
			}
			backends[name] = "ok"
		}

		c.JSON(code, gin.H{
			"status":   state,
			"service":  opts.ServiceName,
			"backends": backends,
		})
	}
}
