package grpc

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	domain "social-graph-service/internal/domain/user"
	"social-graph-service/internal/usecase/follow"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
)

// FollowGraphServiceName is the fully qualified gRPC service name.
const FollowGraphServiceName = "socialgraph.v1.FollowGraph"

// Request and response keys carried in google.protobuf.Struct messages.
const (
	FieldActorID     = "actor_id"
	FieldTargetID    = "target_id"
	FieldUserID      = "user_id"
	FieldOtherUserID = "other_user_id"
	FieldMessage     = "message"
	FieldUsers       = "users"
)

// FollowGraphServer is the server API for the FollowGraph service.
type FollowGraphServer interface {
	Follow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Unfollow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFollowers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFollowing(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MutualFollowers(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FollowGraphService implements FollowGraphServer on top of the follow use case
type FollowGraphService struct {
	uc  follow.Usecase
	log *zap.Logger
}

var _ FollowGraphServer = (*FollowGraphService)(nil)

// NewFollowGraphService creates a new gRPC follow graph service
func NewFollowGraphService(uc follow.Usecase, log *zap.Logger) *FollowGraphService {
	return &FollowGraphService{uc: uc, log: log}
}

// Follow handles gRPC Follow request
func (s *FollowGraphService) Follow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.Follow(ctx, follow.FollowRequest{
		ActorID:  stringField(req, FieldActorID),
		TargetID: stringField(req, FieldTargetID),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return messageStruct(resp.Message), nil
}

// Unfollow handles gRPC Unfollow request
func (s *FollowGraphService) Unfollow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.Unfollow(ctx, follow.UnfollowRequest{
		ActorID:  stringField(req, FieldActorID),
		TargetID: stringField(req, FieldTargetID),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return messageStruct(resp.Message), nil
}

// ListFollowers handles gRPC ListFollowers request
func (s *FollowGraphService) ListFollowers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.ListFollowers(ctx, follow.ListRelationsRequest{UserID: stringField(req, FieldUserID)})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return usersStruct(resp.Users), nil
}

// ListFollowing handles gRPC ListFollowing request
func (s *FollowGraphService) ListFollowing(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.ListFollowing(ctx, follow.ListRelationsRequest{UserID: stringField(req, FieldUserID)})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return usersStruct(resp.Users), nil
}

// MutualFollowers handles gRPC MutualFollowers request
func (s *FollowGraphService) MutualFollowers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.MutualFollowers(ctx, follow.MutualFollowersRequest{
		UserID:      stringField(req, FieldUserID),
		OtherUserID: stringField(req, FieldOtherUserID),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return usersStruct(resp.Users), nil
}

// toStatus keeps the status of typed errors and hides everything else behind Internal.
func (s *FollowGraphService) toStatus(ctx context.Context, err error) error {
	var typed pkgerrors.GRPCStatuser
	if errors.As(err, &typed) {
		return typed.GRPCStatus().Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	logger.WithContext(ctx, s.log).Error("unexpected follow graph error", zap.Error(err))
	return status.Error(codes.Internal, "internal error")
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func messageStruct(msg string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldMessage: structpb.NewStringValue(msg),
	}}
}

func usersStruct(users []domain.Summary) *structpb.Struct {
	list := make([]*structpb.Value, len(users))
	for i, u := range users {
		list[i] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"id":       structpb.NewStringValue(u.ID),
			"username": structpb.NewStringValue(u.Username),
			"email":    structpb.NewStringValue(u.Email),
			"avatar":   structpb.NewStringValue(u.Avatar),
		}})
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldUsers: structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// RegisterFollowGraphServer registers srv on s.
func RegisterFollowGraphServer(s grpc.ServiceRegistrar, srv FollowGraphServer) {
	s.RegisterService(&FollowGraphServiceDesc, srv)
}

type unaryMethod func(FollowGraphServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + FollowGraphServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FollowGraphServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FollowGraphServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FollowGraphServiceDesc is the grpc.ServiceDesc for the FollowGraph service.
var FollowGraphServiceDesc = grpc.ServiceDesc{
	ServiceName: FollowGraphServiceName,
	HandlerType: (*FollowGraphServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler("Follow", FollowGraphServer.Follow),
		methodHandler("Unfollow", FollowGraphServer.Unfollow),
		methodHandler("ListFollowers", FollowGraphServer.ListFollowers),
		methodHandler("ListFollowing", FollowGraphServer.ListFollowing),
		methodHandler("MutualFollowers", FollowGraphServer.MutualFollowers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "socialgraph/v1/follow_graph.proto",
}

// FollowGraphClient is a client for the FollowGraph service.
type FollowGraphClient struct {
	cc grpc.ClientConnInterface
}

// NewFollowGraphClient wraps cc.
func NewFollowGraphClient(cc grpc.ClientConnInterface) *FollowGraphClient {
	return &FollowGraphClient{cc: cc}
}

func (c *FollowGraphClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+FollowGraphServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Follow calls FollowGraph.Follow.
func (c *FollowGraphClient) Follow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Follow", in, opts...)
}

// Unfollow calls FollowGraph.Unfollow.
func (c *FollowGraphClient) Unfollow(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Unfollow", in, opts...)
}

// ListFollowers calls FollowGraph.ListFollowers.
func (c *FollowGraphClient) ListFollowers(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListFollowers", in, opts...)
}

// ListFollowing calls FollowGraph.ListFollowing.
func (c *FollowGraphClient) ListFollowing(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListFollowing", in, opts...)
}

// MutualFollowers calls FollowGraph.MutualFollowers.
func (c *FollowGraphClient) MutualFollowers(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "MutualFollowers", in, opts...)
}
