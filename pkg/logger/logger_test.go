package logger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestWithContext(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = context.WithValue(ctx, UserIDKey, "u1")
	WithContext(ctx, log).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContext_NoFields(t *testing.T) {
	log, _ := observed(zapcore.InfoLevel)
	assert.Same(t, log, WithContext(context.Background(), log))
}

func TestGetTraceID_FromSpan(t *testing.T) {
	traceID := trace.TraceID{0x01, 0x02, 0x03}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x01},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, traceID.String(), GetTraceID(ctx))
	assert.Equal(t, "", GetTraceID(context.Background()))
	assert.Equal(t, "t-1", GetTraceID(context.WithValue(context.Background(), TraceIDKey, "t-1")))
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "abc", RequestID("abc"))

	generated := RequestID("")
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	tooLong := string(make([]byte, maxRequestIDLength+1))
	assert.NotEqual(t, tooLong, RequestID(tooLong))
}

func TestRequestIDInterceptor(t *testing.T) {
	interceptor := RequestIDInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/socialgraph.v1.FollowGraph/Follow"}

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = GetRequestID(ctx)
		return nil, nil
	}

	t.Run("reuses incoming id", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "from-client"))
		_, err := interceptor(ctx, nil, info, handler)
		require.NoError(t, err)
		assert.Equal(t, "from-client", seen)
	})

	t.Run("generates id", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, handler)
		require.NoError(t, err)
		_, err = uuid.Parse(seen)
		assert.NoError(t, err)
	})
}

func TestUnaryLoggingInterceptor(t *testing.T) {
	log, logs := observed(zapcore.InfoLevel)
	interceptor := UnaryLoggingInterceptor(log)
	info := &grpc.UnaryServerInfo{FullMethod: "/socialgraph.v1.FollowGraph/Unfollow"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.FailedPrecondition, "not following")
	})
	require.Error(t, err)

	entries := logs.FilterMessage("grpc call failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "FailedPrecondition", entries[0].ContextMap()["code"])
	assert.Equal(t, info.FullMethod, entries[0].ContextMap()["method"])
}

func TestNewWithConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	log, err := NewWithConfig(Config{
		Level:          "debug",
		Format:         "json",
		OutputPath:     path,
		ServiceName:    "social-graph-service",
		ServiceVersion: "test",
		Environment:    "test",
	})
	require.NoError(t, err)

	log.Debug("written")
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "written", entry["message"])
	assert.Equal(t, "social-graph-service", entry["service"])
	assert.Equal(t, "debug", entry["level"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

func TestGormLogger_Trace(t *testing.T) {
	sql := func() (string, int64) { return "SELECT * FROM users", 1 }

	t.Run("query error", func(t *testing.T) {
		log, logs := observed(zapcore.DebugLevel)
		gl := NewGormLogger(log, 1, "warn")

		gl.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))

		assert.Equal(t, 1, logs.FilterMessage("gorm query error").Len())
	})

	t.Run("not found is debug", func(t *testing.T) {
		log, logs := observed(zapcore.DebugLevel)
		gl := NewGormLogger(log, 1, "warn")

		gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
		gl.Trace(context.Background(), time.Now(), sql, errors.New("UNIQUE constraint failed: users.username"))

		assert.Equal(t, 0, logs.FilterMessage("gorm query error").Len())
		assert.Equal(t, 2, logs.FilterLevelExact(zapcore.DebugLevel).Len())
	})

	t.Run("slow query", func(t *testing.T) {
		log, logs := observed(zapcore.DebugLevel)
		gl := NewGormLogger(log, 0.001, "warn")

		gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)

		assert.Equal(t, 1, logs.FilterMessage("gorm slow query").Len())
	})

	t.Run("silent", func(t *testing.T) {
		log, logs := observed(zapcore.DebugLevel)
		gl := NewGormLogger(log, 1, "warn").LogMode(gormlogger.Silent)

		gl.Trace(context.Background(), time.Now(), sql, errors.New("boom"))

		assert.Equal(t, 0, logs.Len())
	})
}
