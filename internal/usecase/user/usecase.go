package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
	"social-graph-service/pkg/security"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var _ Usecase = (*Service)(nil)

// Service implements the user directory business logic.
// Deletion is delegated to the follow graph so relation lists stay consistent.
type Service struct {
	repo     Repository          // Repository for data access
	graph    GraphCleaner        // Follow graph, used for cascade deletes
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request validation
	now      func() time.Time
}

// New creates a new user directory service.
func New(r Repository, graph GraphCleaner, log *zap.Logger) *Service {
	return &Service{repo: r, graph: graph, log: log, validate: validator.New(), now: time.Now}
}

// CreateUser validates the request, checks username and email uniqueness
// and stores a new record with empty relation lists.
func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (*ProfileResponse, error) {
	log := logger.WithContext(ctx, s.log)
	in.Username, in.Email = strings.TrimSpace(in.Username), strings.TrimSpace(in.Email)
	log.Info("creating user", zap.String("username", in.Username), zap.String("email", in.Email))

	if err := s.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, pkgerrors.FromValidation(err)
	}

	if err := s.ensureUsernameFree(ctx, in.Username, ""); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &domain.User{
		ID:         uuid.NewString(),
		Username:   in.Username,
		Email:      in.Email,
		Bio:        in.Bio,
		Avatar:     in.Avatar,
		Credential: in.Credential,
		Followers:  domain.IDSet{},
		Following:  domain.IDSet{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		log.Error("failed to create user", zap.String("username", in.Username), zap.Error(err))
		return nil, err
	}

	log.Info("user created", zap.String("user_id", u.ID))
	return &ProfileResponse{User: u.ToProfile()}, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, in GetUserRequest) (*ProfileResponse, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, pkgerrors.NewValidationError("ID", "ID is required")
	}
	return s.profile(ctx, "id", id, s.repo.GetByID)
}

// GetUserByUsername retrieves a user by exact username.
func (s *Service) GetUserByUsername(ctx context.Context, in GetUserByUsernameRequest) (*ProfileResponse, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, pkgerrors.NewValidationError("Username", "Username is required")
	}
	return s.profile(ctx, "username", username, s.repo.GetByUsername)
}

// GetUserByEmail retrieves a user by exact email.
func (s *Service) GetUserByEmail(ctx context.Context, in GetUserByEmailRequest) (*ProfileResponse, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, pkgerrors.NewValidationError("Email", "Email is required")
	}
	return s.profile(ctx, "email", email, s.repo.GetByEmail)
}

func (s *Service) profile(ctx context.Context, key, value string, get func(context.Context, string) (*domain.User, error)) (*ProfileResponse, error) {
	u, err := get(ctx, value)
	if err != nil {
		s.logFailure(logger.WithContext(ctx, s.log), "failed to get user", err, zap.String(key, value))
		return nil, err
	}
	return &ProfileResponse{User: u.ToProfile()}, nil
}

// UpdateProfile applies the non-nil fields of the patch. Changing username
// or email re-checks uniqueness. Relation lists are never touched here.
func (s *Service) UpdateProfile(ctx context.Context, in UpdateProfileRequest) (*ProfileResponse, error) {
	log := logger.WithContext(ctx, s.log)
	in.ID = strings.TrimSpace(in.ID)
	log.Info("updating user", zap.String("user_id", in.ID))

	if err := s.validate.Struct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, pkgerrors.FromValidation(err)
	}

	u, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		s.logFailure(log, "failed to load user for update", err, zap.String("user_id", in.ID))
		return nil, err
	}

	if in.Username != nil && *in.Username != u.Username {
		if err := s.ensureUsernameFree(ctx, *in.Username, u.ID); err != nil {
			return nil, err
		}
		u.Username = *in.Username
	}
	if in.Email != nil && *in.Email != u.Email {
		if err := s.ensureEmailFree(ctx, *in.Email, u.ID); err != nil {
			return nil, err
		}
		u.Email = *in.Email
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, u); err != nil {
		s.logFailure(log, "failed to update user", err, zap.String("user_id", in.ID))
		return nil, err
	}

	return &ProfileResponse{User: u.ToProfile()}, nil
}

// DeleteUser removes the user and every follow edge that references it.
func (s *Service) DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error) {
	log := logger.WithContext(ctx, s.log)
	id := strings.TrimSpace(in.ID)
	log.Info("deleting user", zap.String("user_id", id))

	if id == "" {
		log.Warn("delete user validation failed", zap.String("reason", "missing id"))
		return nil, pkgerrors.NewValidationError("ID", "ID is required")
	}

	if err := s.graph.DeleteUserCascade(ctx, id); err != nil {
		return nil, err
	}

	return &DeleteUserResponse{ID: id}, nil
}

// SearchUsers runs a case-insensitive substring search on usernames.
func (s *Service) SearchUsers(ctx context.Context, in SearchUsersRequest) (*SearchUsersResponse, error) {
	log := logger.WithContext(ctx, s.log)

	if strings.TrimSpace(in.Query) == "" {
		return nil, pkgerrors.NewValidationError("query", "Search query is required")
	}
	query, err := security.ValidateSearchQuery(in.Query)
	if err != nil {
		log.Warn("invalid search query", zap.String("query", in.Query), zap.Error(err))
		return nil, pkgerrors.NewValidationError("query", err.Error())
	}

	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = defaultPageLimit
	}
	if in.Limit > maxPageLimit {
		in.Limit = maxPageLimit
	}

	log.Info("searching users", zap.String("query", query), zap.Int64("page", in.Page), zap.Int64("limit", in.Limit))

	found, total, err := s.repo.Search(ctx, query, in.Page, in.Limit)
	if err != nil {
		s.logFailure(log, "failed to search users", err, zap.String("query", query))
		return nil, err
	}

	users := make([]domain.SearchSummary, len(found))
	for i := range found {
		users[i] = found[i].ToSearchSummary()
	}

	return &SearchUsersResponse{
		Users:      users,
		Pagination: domain.NewPagination(total, in.Page, in.Limit),
	}, nil
}

// ensureUsernameFree returns AlreadyExistsError when username belongs to a
// user other than selfID.
func (s *Service) ensureUsernameFree(ctx context.Context, username, selfID string) error {
	existing, err := s.repo.GetByUsername(ctx, username)
	return s.checkFree(ctx, existing, err, "username", username, selfID)
}

func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	return s.checkFree(ctx, existing, err, "email", email, selfID)
}

func (s *Service) checkFree(ctx context.Context, existing *domain.User, err error, field, value, selfID string) error {
	log := logger.WithContext(ctx, s.log)
	switch {
	case pkgerrors.IsNotFound(err):
		return nil
	case err != nil:
		log.Error("failed to check uniqueness", zap.String("field", field), zap.Error(err))
		return err
	case existing != nil && existing.ID != selfID:
		log.Warn("value already taken", zap.String("field", field), zap.String("value", value))
		return pkgerrors.NewAlreadyExistsError("user", field, value)
	}
	return nil
}

func (s *Service) logFailure(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if pkgerrors.IsStoreError(err) {
		log.Error(msg, fields...)
		return
	}
	log.Warn(msg, fields...)
}
