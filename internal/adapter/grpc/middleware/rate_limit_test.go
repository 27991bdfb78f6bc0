package middleware

import (
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"social-graph-service/internal/adapter/ratelimit"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, mr
}

func setupInterceptor(t *testing.T, cfg ratelimit.Config) (grpc.UnaryServerInterceptor, *miniredis.Miniredis) {
	client, mr := setupTestRedis(t)
	rl := NewRateLimiter(ratelimit.New(client, cfg), zaptest.NewLogger(t))
	return rl.UnaryInterceptor(), mr
}

// mockHandler is a simple handler that returns a fixed response
func mockHandler(ctx context.Context, req any) (any, error) {
	return "success", nil
}

func peerContext(t *testing.T, addr string) context.Context {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)
	return peer.NewContext(context.Background(), &peer.Peer{Addr: tcp})
}

var followInfo = &grpc.UnaryServerInfo{FullMethod: "/socialgraph.v1.FollowGraph/Follow"}

func TestRateLimiter_WithinLimit(t *testing.T) {
	interceptor, _ := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 10, BurstCapacity: 10, Enabled: true})
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 5; i++ {
		resp, err := interceptor(ctx, nil, followInfo, mockHandler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	}
}

func TestRateLimiter_ExceedLimit(t *testing.T) {
	interceptor, _ := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 5, Enabled: true})
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 5; i++ {
		_, err := interceptor(ctx, nil, followInfo, mockHandler)
		require.NoError(t, err)
	}

	resp, err := interceptor(ctx, nil, followInfo, mockHandler)
	require.Error(t, err)
	assert.Nil(t, resp)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.ResourceExhausted, st.Code())
	assert.Contains(t, st.Message(), "rate limit exceeded")
}

func TestRateLimiter_Disabled(t *testing.T) {
	interceptor, _ := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 1, Enabled: false})
	ctx := peerContext(t, "127.0.0.1:12345")

	for i := 0; i < 10; i++ {
		resp, err := interceptor(ctx, nil, followInfo, mockHandler)
		require.NoError(t, err)
		assert.Equal(t, "success", resp)
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	interceptor, _ := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 2, Enabled: true})

	ctx1 := peerContext(t, "192.168.1.1:12345")
	for i := 0; i < 2; i++ {
		_, err := interceptor(ctx1, nil, followInfo, mockHandler)
		require.NoError(t, err)
	}
	_, err := interceptor(ctx1, nil, followInfo, mockHandler)
	require.Error(t, err)

	// IP 2 has its own bucket
	resp, err := interceptor(peerContext(t, "192.168.1.2:12345"), nil, followInfo, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestRateLimiter_XForwardedFor(t *testing.T) {
	interceptor, mr := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 5, BurstCapacity: 10, Enabled: true})

	md := metadata.Pairs("x-forwarded-for", "203.0.113.1")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	_, err := interceptor(ctx, nil, followInfo, mockHandler)
	require.NoError(t, err)
	assert.True(t, mr.Exists(ratelimit.Key(followInfo.FullMethod, "203.0.113.1")))
}

func TestRateLimiter_DifferentMethods(t *testing.T) {
	interceptor, _ := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 0.001, BurstCapacity: 1, Enabled: true})
	ctx := peerContext(t, "127.0.0.1:12345")

	_, err := interceptor(ctx, nil, followInfo, mockHandler)
	require.NoError(t, err)

	unfollow := &grpc.UnaryServerInfo{FullMethod: "/socialgraph.v1.FollowGraph/Unfollow"}
	resp, err := interceptor(ctx, nil, unfollow, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}

func TestRateLimiter_FailOpen(t *testing.T) {
	interceptor, mr := setupInterceptor(t, ratelimit.Config{RequestsPerSecond: 1, BurstCapacity: 1, Enabled: true})
	mr.Close()

	resp, err := interceptor(peerContext(t, "127.0.0.1:1"), nil, followInfo, mockHandler)
	require.NoError(t, err)
	assert.Equal(t, "success", resp)
}
