package follow

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	pkgerrors "social-graph-service/pkg/errors"
	"social-graph-service/pkg/logger"
)

const defaultReadAttempts = 3

var _ Usecase = (*Service)(nil)

// Service implements Usecase on top of a Directory.
// It holds no state between calls; every mutation is a single
// Directory transaction over one or two records.
type Service struct {
	dir          Directory
	log          *zap.Logger
	validate     *validator.Validate
	readAttempts uint
	newBackOff   func() backoff.BackOff
}

// Option configures a Service.
type Option func(*Service)

// WithReadAttempts bounds how many times a read is attempted when the store fails.
func WithReadAttempts(n uint) Option {
	return func(s *Service) {
		if n > 0 {
			s.readAttempts = n
		}
	}
}

// WithBackOff overrides the wait policy between read attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// New creates a follow graph service over dir.
func New(dir Directory, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		dir:          dir,
		log:          log,
		validate:     validator.New(),
		readAttempts: defaultReadAttempts,
		newBackOff:   defaultBackOff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// Follow makes in.ActorID follow in.TargetID.
func (s *Service) Follow(ctx context.Context, in FollowRequest) (*FollowResponse, error) {
	log := logger.WithContext(ctx, s.log)
	in.ActorID, in.TargetID = strings.TrimSpace(in.ActorID), strings.TrimSpace(in.TargetID)

	if err := s.checkEdge(in); err != nil {
		log.Warn("follow rejected", zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID), zap.Error(err))
		return nil, err
	}

	err := s.dir.UpdatePair(ctx, in.ActorID, in.TargetID, func(actor, target *domain.User) error {
		if actor.IsFollowing(target.ID) {
			return pkgerrors.NewAlreadyFollowingError(actor.ID, target.ID)
		}
		actor.Following, _ = actor.Following.Add(target.ID)
		target.Followers, _ = target.Followers.Add(actor.ID)
		return nil
	})
	if err != nil {
		s.logFailure(log, "follow failed", err, zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID))
		return nil, err
	}

	log.Info("user followed", zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID))
	return &FollowResponse{Message: "Successfully followed the user"}, nil
}

// Unfollow removes the edge in.ActorID -> in.TargetID.
func (s *Service) Unfollow(ctx context.Context, in UnfollowRequest) (*UnfollowResponse, error) {
	log := logger.WithContext(ctx, s.log)
	in.ActorID, in.TargetID = strings.TrimSpace(in.ActorID), strings.TrimSpace(in.TargetID)

	if err := s.checkEdge(FollowRequest(in)); err != nil {
		log.Warn("unfollow rejected", zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID), zap.Error(err))
		return nil, err
	}

	err := s.dir.UpdatePair(ctx, in.ActorID, in.TargetID, func(actor, target *domain.User) error {
		if !actor.IsFollowing(target.ID) {
			return pkgerrors.NewNotFollowingError(actor.ID, target.ID)
		}
		actor.Following, _ = actor.Following.Remove(target.ID)
		target.Followers, _ = target.Followers.Remove(actor.ID)
		return nil
	})
	if err != nil {
		s.logFailure(log, "unfollow failed", err, zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID))
		return nil, err
	}

	log.Info("user unfollowed", zap.String("actor_id", in.ActorID), zap.String("target_id", in.TargetID))
	return &UnfollowResponse{Message: "Successfully unfollowed the user"}, nil
}

// ListFollowers returns summaries of the users following in.UserID.
func (s *Service) ListFollowers(ctx context.Context, in ListRelationsRequest) (*ListRelationsResponse, error) {
	u, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, u.Followers)
}

// ListFollowing returns summaries of the users in.UserID follows.
func (s *Service) ListFollowing(ctx context.Context, in ListRelationsRequest) (*ListRelationsResponse, error) {
	u, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, u.Following)
}

// MutualFollowers returns the users that in.UserID follows and that also follow in.OtherUserID.
// The relation is not symmetric in its arguments.
func (s *Service) MutualFollowers(ctx context.Context, in MutualFollowersRequest) (*ListRelationsResponse, error) {
	a, err := s.loadUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	b, err := s.loadUser(ctx, in.OtherUserID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, a.Following.Intersect(b.Followers))
}

// DeleteUserCascade deletes the user and purges its id from every other relation list.
func (s *Service) DeleteUserCascade(ctx context.Context, userID string) error {
	log := logger.WithContext(ctx, s.log)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pkgerrors.NewValidationError("UserID", "UserID is required")
	}

	affected, err := s.dir.DeleteCascade(ctx, userID)
	if err != nil {
		s.logFailure(log, "cascade delete failed", err, zap.String("user_id", userID))
		return err
	}

	log.Info("user deleted with relation cleanup", zap.String("user_id", userID), zap.Int("affected_users", len(affected)))
	return nil
}

func (s *Service) checkEdge(in FollowRequest) error {
	if err := s.validate.Struct(in); err != nil {
		return pkgerrors.FromValidation(err)
	}
	if in.ActorID == in.TargetID {
		return pkgerrors.NewSelfReferenceError(in.ActorID)
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.NewValidationError("UserID", "UserID is required")
	}
	u, err := retryRead(ctx, s, "get user", func() (*domain.User, error) {
		return s.dir.GetByID(ctx, id)
	})
	if err != nil {
		s.logFailure(logger.WithContext(ctx, s.log), "failed to load user", err, zap.String("user_id", id))
		return nil, err
	}
	return u, nil
}

// resolve turns ids into summaries in the order of ids. Ids without a record are skipped.
func (s *Service) resolve(ctx context.Context, ids domain.IDSet) (*ListRelationsResponse, error) {
	if len(ids) == 0 {
		return &ListRelationsResponse{Users: []domain.Summary{}}, nil
	}

	records, err := retryRead(ctx, s, "get users", func() ([]domain.User, error) {
		return s.dir.GetByIDs(ctx, ids)
	})
	if err != nil {
		s.logFailure(logger.WithContext(ctx, s.log), "failed to resolve relation list", err, zap.Int("count", len(ids)))
		return nil, err
	}

	byID := make(map[string]*domain.User, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}

	users := make([]domain.Summary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u.ToSummary())
		}
	}
	if missing := len(ids) - len(users); missing > 0 {
		logger.WithContext(ctx, s.log).Warn("relation list references missing users", zap.Int("missing", missing))
	}

	return &ListRelationsResponse{Users: users}, nil
}

func (s *Service) logFailure(log *zap.Logger, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if pkgerrors.IsStoreError(err) {
		log.Error(msg, fields...)
		return
	}
	log.Warn(msg, fields...)
}

// retryRead runs read until it succeeds, fails with a non-store error, or
// the attempt budget is spent. Reads are idempotent so retrying is safe.
func retryRead[T any](ctx context.Context, s *Service, op string, read func() (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := read()
		if err == nil {
			return v, nil
		}
		if !pkgerrors.IsStoreError(err) {
			return v, backoff.Permanent(err)
		}
		logger.WithContext(ctx, s.log).Warn("store read failed",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return v, err
	}, backoff.WithBackOff(s.newBackOff()), backoff.WithMaxTries(s.readAttempts))
}
