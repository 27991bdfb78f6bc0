package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	ginhandler "social-graph-service/internal/adapter/gin/handler"
	ginrouter "social-graph-service/internal/adapter/gin/router"
	"social-graph-service/internal/adapter/ratelimit"
)

// SetupGinServer creates and configures the Gin REST API server
func SetupGinServer(
	userHandler *ginhandler.UserHandler,
	followHandler *ginhandler.FollowHandler,
	limiter *ratelimit.Limiter,
	opts ginrouter.Options,
	ginAddr string,
	l *zap.Logger,
) *http.Server {
	router := ginrouter.SetupRouter(userHandler, followHandler, limiter, l, opts)

	l.Info("Gin REST API configured", zap.String("address", ginAddr))

	return &http.Server{
		Addr:              ginAddr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
