package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"social-graph-service/cmd/api/infrastructure"
	"social-graph-service/internal/adapter/cache"
	"social-graph-service/internal/adapter/db/postgres"
	ginhandler "social-graph-service/internal/adapter/gin/handler"
	ginrouter "social-graph-service/internal/adapter/gin/router"
	grpcadapter "social-graph-service/internal/adapter/grpc"
	"social-graph-service/internal/adapter/grpc/middleware"
	"social-graph-service/internal/adapter/ratelimit"
	"social-graph-service/internal/adapter/repository/cached"
	"social-graph-service/internal/config"
	"social-graph-service/internal/usecase/follow"
	"social-graph-service/internal/usecase/user"
	redisclient "social-graph-service/pkg/redis"
	"social-graph-service/pkg/tracing"
)

// Container holds all application dependencies
type Container struct {
	Config          *config.Config
	Logger          *zap.Logger
	DB              *gorm.DB
	Mongo           *mongo.Client
	RedisClient     *redisclient.Client
	Store           cached.Store
	UserUC          user.Usecase
	FollowUC        follow.Usecase
	Limiter         *ratelimit.Limiter
	GRPCRateLimiter *middleware.RateLimiter
	UserHandler     *ginhandler.UserHandler
	FollowHandler   *ginhandler.FollowHandler
	FollowGraph     *grpcadapter.FollowGraphService
	ShutdownTracing tracing.ShutdownFunc
}

// NewContainer creates and initializes all application dependencies.
// Resources opened before a failure are closed again.
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger, env string) (c *Container, err error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c = &Container{Config: cfg, Logger: l}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.ShutdownTracing, err = tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceName:    cfg.Logger.ServiceName,
		ServiceVersion: cfg.Logger.ServiceVersion,
		Environment:    env,
	}, l)
	if err != nil {
		return c, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return c, err
	}

	c.RedisClient, err = infrastructure.NewRedisClient(ctx, cfg, l)
	if err != nil {
		return c, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Without Redis the store is used directly and nothing is rate limited
	if c.RedisClient != nil {
		userCache := cache.NewRedisUserCache(
			c.RedisClient.Client,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
			l,
		)
		store = cached.NewCachedUserRepository(store, userCache, l)
		c.Limiter = ratelimit.New(c.RedisClient.Client, ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstCapacity:     cfg.RateLimit.BurstCapacity,
			Enabled:           cfg.RateLimit.Enabled,
		})
	}
	c.Store = store

	followUC := follow.New(store, l, follow.WithReadAttempts(cfg.Graph.ReadRetryAttempts))
	c.FollowUC = followUC
	c.UserUC = user.New(store, followUC, l)

	c.GRPCRateLimiter = middleware.NewRateLimiter(c.Limiter, l)
	c.UserHandler = ginhandler.NewUserHandler(c.UserUC, l)
	c.FollowHandler = ginhandler.NewFollowHandler(c.FollowUC, l)
	c.FollowGraph = grpcadapter.NewFollowGraphService(c.FollowUC, l)

	return c, nil
}

// openStore opens the backend selected by DB_DRIVER
func (c *Container) openStore(ctx context.Context) (cached.Store, error) {
	if c.Config.DB.Driver == config.DriverMongo {
		client, repo, err := infrastructure.NewMongoClient(ctx, c.Config, c.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
		}
		c.Mongo = client
		return repo, nil
	}

	db, err := infrastructure.NewDatabase(c.Config, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DB = db
	return postgres.NewUserRepoPG(db, c.Logger), nil
}

// HealthChecks returns a probe for every backend the container opened
func (c *Container) HealthChecks() map[string]ginrouter.HealthCheck {
	checks := make(map[string]ginrouter.HealthCheck)
	if c.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if c.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error {
			return c.Mongo.Ping(ctx, nil)
		}
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Healthy
	}
	return checks
}

// Close closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.DB != nil {
		if err := infrastructure.CloseDatabase(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if c.Mongo != nil {
		if err := infrastructure.CloseMongo(context.Background(), c.Mongo); err != nil {
			errs = append(errs, err)
		}
	}

	if c.ShutdownTracing != nil {
		if err := c.ShutdownTracing(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %w", errors.Join(errs...))
	}

	return nil
}
