package follow

import (
	"context"

	domain "social-graph-service/internal/domain/user"
)

// Usecase defines the follow graph operations exposed to transports.
type Usecase interface {
	Follow(ctx context.Context, in FollowRequest) (*FollowResponse, error)
	Unfollow(ctx context.Context, in UnfollowRequest) (*UnfollowResponse, error)
	ListFollowers(ctx context.Context, in ListRelationsRequest) (*ListRelationsResponse, error)
	ListFollowing(ctx context.Context, in ListRelationsRequest) (*ListRelationsResponse, error)
	MutualFollowers(ctx context.Context, in MutualFollowersRequest) (*ListRelationsResponse, error)
	DeleteUserCascade(ctx context.Context, userID string) error
}

// Directory is the user store the follow graph reads and mutates.
// Implementations report missing records as *errors.NotFoundError and
// persistence failures as *errors.StoreError.
type Directory interface {
	// GetByID returns a single user record.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByIDs returns the records that exist among ids, in no particular order.
	GetByIDs(ctx context.Context, ids []string) ([]domain.User, error)

	// UpdatePair loads both records in one transaction, applies fn and
	// persists both, or neither if fn or the store fails.
	UpdatePair(ctx context.Context, actorID, targetID string, fn domain.PairMutation) error

	// DeleteCascade deletes the record and removes its id from every other
	// record's relation lists in one transaction. It returns the ids of the
	// records that were rewritten.
	DeleteCascade(ctx context.Context, id string) ([]string, error)
}
