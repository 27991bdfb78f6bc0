package user

import domain "social-graph-service/internal/domain/user"

// CreateUserRequest represents the request payload for creating a new user.
// Credential is stored as given; hashing belongs to the auth collaborator.
type CreateUserRequest struct {
	Username   string `validate:"required,min=3,max=30"`
	Email      string `validate:"required,email"`
	Bio        string `validate:"max=280"`
	Avatar     string `validate:"omitempty,max=512"`
	Credential string `validate:"required"`
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID string
}

// GetUserByUsernameRequest looks a user up by exact username.
type GetUserByUsernameRequest struct {
	Username string
}

// GetUserByEmailRequest looks a user up by exact email.
type GetUserByEmailRequest struct {
	Email string
}

// UpdateProfileRequest is a patch: nil fields are left unchanged.
type UpdateProfileRequest struct {
	ID       string  `validate:"required"`
	Username *string `validate:"omitempty,min=3,max=30"`
	Email    *string `validate:"omitempty,email"`
	Bio      *string `validate:"omitempty,max=280"`
	Avatar   *string `validate:"omitempty,max=512"`
}

// ProfileResponse wraps the full profile view of a user.
type ProfileResponse struct {
	User domain.Profile
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID string
}

// DeleteUserResponse represents the response payload after deleting a user.
type DeleteUserResponse struct {
	ID string
}

// SearchUsersRequest represents a username search with pagination.
type SearchUsersRequest struct {
	Query string
	Page  int64
	Limit int64
}

// SearchUsersResponse represents the response payload for user search.
type SearchUsersResponse struct {
	Users      []domain.SearchSummary
	Pagination *domain.Pagination
}
