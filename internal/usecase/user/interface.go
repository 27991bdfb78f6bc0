package user

import (
	"context"

	domain "social-graph-service/internal/domain/user"
)

// Usecase defines the user directory operations exposed to transports.
type Usecase interface {
	CreateUser(ctx context.Context, in CreateUserRequest) (*ProfileResponse, error)
	GetUser(ctx context.Context, in GetUserRequest) (*ProfileResponse, error)
	GetUserByUsername(ctx context.Context, in GetUserByUsernameRequest) (*ProfileResponse, error)
	GetUserByEmail(ctx context.Context, in GetUserByEmailRequest) (*ProfileResponse, error)
	UpdateProfile(ctx context.Context, in UpdateProfileRequest) (*ProfileResponse, error)
	DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error)
	SearchUsers(ctx context.Context, in SearchUsersRequest) (*SearchUsersResponse, error)
}

// Repository defines the interface for user data access operations.
// Missing records are reported as *errors.NotFoundError, uniqueness
// violations as *errors.AlreadyExistsError.
type Repository interface {
	Create(ctx context.Context, u *domain.User) error                                          // Insert a new record
	GetByID(ctx context.Context, id string) (*domain.User, error)                              // Retrieve user by ID
	GetByUsername(ctx context.Context, username string) (*domain.User, error)                  // Retrieve user by username
	GetByEmail(ctx context.Context, email string) (*domain.User, error)                        // Retrieve user by email
	Update(ctx context.Context, u *domain.User) error                                          // Write profile fields; relation lists are left alone
	Search(ctx context.Context, query string, page, limit int64) ([]domain.User, int64, error) // Case-insensitive username search with total count
}

// GraphCleaner removes a user together with every follow edge that touches it.
type GraphCleaner interface {
	DeleteUserCascade(ctx context.Context, userID string) error
}
