package follow

import domain "social-graph-service/internal/domain/user"

// FollowRequest asks for ActorID to start following TargetID.
type FollowRequest struct {
	ActorID  string `validate:"required"`
	TargetID string `validate:"required"`
}

// FollowResponse confirms a follow.
type FollowResponse struct {
	Message string
}

// UnfollowRequest asks for ActorID to stop following TargetID.
type UnfollowRequest struct {
	ActorID  string `validate:"required"`
	TargetID string `validate:"required"`
}

// UnfollowResponse confirms an unfollow.
type UnfollowResponse struct {
	Message string
}

// ListRelationsRequest selects the user whose followers or following are listed.
type ListRelationsRequest struct {
	UserID string `validate:"required"`
}

// MutualFollowersRequest selects the users A (UserID) and B (OtherUserID).
// The result is the users A follows that also follow B.
type MutualFollowersRequest struct {
	UserID      string `validate:"required"`
	OtherUserID string `validate:"required"`
}

// ListRelationsResponse holds relation summaries in relation-list order.
type ListRelationsResponse struct {
	Users []domain.Summary
}
