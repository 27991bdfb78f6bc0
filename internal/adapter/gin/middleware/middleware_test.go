package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"social-graph-service/internal/adapter/ratelimit"
	"social-graph-service/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, logger.GetRequestID(c.Request.Context()))
	})

	t.Run("generated", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/ping", nil)

		id := w.Header().Get(logger.RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagated", func(t *testing.T) {
		w := perform(r, http.MethodGet, "/ping", map[string]string{logger.RequestIDHeader: "abc-123"})

		assert.Equal(t, "abc-123", w.Header().Get(logger.RequestIDHeader))
		assert.Equal(t, "abc-123", w.Body.String())
	})
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	perform(r, http.MethodGet, "/users/u1", nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "/users/:id", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"An internal error occurred"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func setupLimitedRouter(t *testing.T, cfg ratelimit.Config) (*gin.Engine, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(RateLimiter(ratelimit.New(client, cfg), zaptest.NewLogger(t)))
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/users/:id/follow", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r, mr
}

func TestRateLimiter(t *testing.T) {
	t.Run("exceeds burst", func(t *testing.T) {
		r, _ := setupLimitedRouter(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 2, Enabled: true})

		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/users/a", nil).Code)
		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/users/b", nil).Code)

		w := perform(r, http.MethodGet, "/users/c", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

		// separate route, separate bucket
		assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/users/a/follow", nil).Code)
	})

	t.Run("keyed by route template", func(t *testing.T) {
		r, mr := setupLimitedRouter(t, ratelimit.Config{RequestsPerSecond: 1, BurstCapacity: 5, Enabled: true})

		w := perform(r, http.MethodGet, "/users/a", nil)

		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
		assert.True(t, mr.Exists(ratelimit.Key("GET /users/:id", "192.0.2.1")))
	})

	t.Run("disabled", func(t *testing.T) {
		r, _ := setupLimitedRouter(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 1, Enabled: false})

		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/users/a", nil).Code)
		}
	})

	t.Run("fails open", func(t *testing.T) {
		r, mr := setupLimitedRouter(t, ratelimit.Config{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})
		mr.Close()

		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/users/a", nil).Code)
	})

	t.Run("nil limiter", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimiter(nil, zaptest.NewLogger(t)))
		r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ok", nil).Code)
	})
}
