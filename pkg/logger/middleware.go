package logger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// RequestIDHeader is the HTTP header carrying the request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDMetadataKey is the gRPC metadata key carrying the request ID.
	RequestIDMetadataKey = "x-request-id"
)

// maxRequestIDLength bounds caller-supplied request IDs.
const maxRequestIDLength = 128

// RequestID returns incoming when it is a usable request ID, otherwise a new UUID.
func RequestID(incoming string) string {
	if incoming != "" && len(incoming) <= maxRequestIDLength {
		return incoming
	}
	return uuid.New().String()
}

// WithRequestID stores id in ctx under RequestIDKey.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDInterceptor is a gRPC interceptor that adds a request ID to the context.
// An x-request-id sent by the caller is reused and echoed back in the response header.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		var incoming string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(RequestIDMetadataKey); len(values) > 0 {
				incoming = values[0]
			}
		}
		requestID := RequestID(incoming)

		// Best effort; fails only outside a real server stream
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadataKey, requestID))

		return handler(WithRequestID(ctx, requestID), req)
	}
}

// UnaryLoggingInterceptor logs every unary call with its status code and latency.
func UnaryLoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		}
		l := WithContext(ctx, log)
		if err != nil {
			l.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			l.Info("grpc call", fields...)
		}
		return resp, err
	}
}
