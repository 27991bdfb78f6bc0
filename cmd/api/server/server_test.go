package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"social-graph-service/cmd/api/di"
	"social-graph-service/internal/config"
)

func setupServer(t *testing.T) *Server {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.SQLitePath = filepath.Join(t.TempDir(), "graph.db")
	cfg.Redis.Enabled = false
	cfg.App.GRPCPort = "0"
	cfg.App.HTTPPort = "0"
	cfg.App.ShutdownTimeoutSeconds = 2

	log := zaptest.NewLogger(t)
	c, err := di.NewContainer(context.Background(), cfg, log, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return New(cfg, log, c)
}

func TestServer_Health(t *testing.T) {
	s := setupServer(t)

	w := httptest.NewRecorder()
	s.Gin.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "social-graph-service")
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	s := setupServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWithSignal(t *testing.T) {
	ctx, stop := WithSignal(context.Background())
	stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by stop")
	}
}
