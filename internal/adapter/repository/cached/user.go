package cached

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"social-graph-service/internal/adapter/cache"
	domain "social-graph-service/internal/domain/user"
	"social-graph-service/internal/usecase/follow"
	"social-graph-service/internal/usecase/user"
	"social-graph-service/pkg/logger"
)

// Store is a user store that serves both the user directory and the follow graph.
type Store interface {
	user.Repository
	follow.Directory
}

const (
	invalidateAttempts = 3
	invalidateTimeout  = 2 * time.Second
)

// CachedUserRepository implements Store with caching support.
// It wraps a persistent store and a cache implementation. Only lookups by
// id are cached; every write invalidates the records it touched.
//
// Loads read the cache version of a record before reading the store and
// write back only under that version, so a load that overlaps a write can
// never re-cache the record the write replaced.
type CachedUserRepository struct {
	store Store
	cache cache.UserCache
	log   *zap.Logger
	group singleflight.Group
}

var _ Store = (*CachedUserRepository)(nil)

// NewCachedUserRepository creates a new instance of CachedUserRepository.
func NewCachedUserRepository(store Store, cache cache.UserCache, log *zap.Logger) *CachedUserRepository {
	return &CachedUserRepository{
		store: store,
		cache: cache,
		log:   log,
	}
}

// Create delegates to the underlying store.
func (r *CachedUserRepository) Create(ctx context.Context, u *domain.User) error {
	return r.store.Create(ctx, u)
}

// GetByID retrieves a user by ID using Cache-Aside pattern.
func (r *CachedUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	log := logger.WithContext(ctx, r.log)

	if cachedUser, err := r.cache.Get(ctx, id); err != nil {
		log.Warn("cache get error, falling back to database", zap.String("id", id), zap.Error(err))
	} else if cachedUser != nil {
		return cachedUser, nil
	}

	// Cache miss - use single-flight to prevent stampede
	result, err, _ := r.group.Do(cache.Key(id), func() (any, error) {
		versions, verErr := r.cache.Versions(ctx, id)

		// Another request may have populated the cache while we were waiting
		if cachedUser, err := r.cache.Get(ctx, id); err == nil && cachedUser != nil {
			log.Debug("user retrieved from cache after single-flight wait", zap.String("id", id))
			return cachedUser, nil
		}

		u, err := r.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if verErr == nil {
			r.fill(ctx, u, versions[u.ID])
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	// Callers may mutate the record; never hand out the shared value.
	return clone(result.(*domain.User)), nil
}

// GetByIDs serves cached records with one MGET and loads the rest in one
// store call.
func (r *CachedUserRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	log := logger.WithContext(ctx, r.log)

	found, err := r.cache.GetMultiple(ctx, ids)
	if err != nil {
		log.Warn("cache multi get error, falling back to database", zap.Int("count", len(ids)), zap.Error(err))
		found = nil
	}

	users := make([]domain.User, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if u, ok := found[id]; ok {
			users = append(users, *u)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return users, nil
	}

	versions, verErr := r.cache.Versions(ctx, missing...)
	loaded, err := r.store.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	if verErr == nil {
		for i := range loaded {
			r.fill(ctx, &loaded[i], versions[loaded[i].ID])
		}
	}
	return append(users, loaded...), nil
}

// fill caches u under version, logging instead of failing the read.
func (r *CachedUserRepository) fill(ctx context.Context, u *domain.User, version string) {
	if _, err := r.cache.Set(ctx, u, version); err != nil {
		logger.WithContext(ctx, r.log).Warn("failed to cache user", zap.String("id", u.ID), zap.Error(err))
	}
}

// GetByUsername delegates to the underlying store.
func (r *CachedUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.store.GetByUsername(ctx, username)
}

// GetByEmail delegates to the underlying store.
func (r *CachedUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.store.GetByEmail(ctx, email)
}

// Update writes through to the store and invalidates the cache.
func (r *CachedUserRepository) Update(ctx context.Context, u *domain.User) error {
	if err := r.store.Update(ctx, u); err != nil {
		return err
	}
	r.invalidate(ctx, "update", u.ID)
	return nil
}

// Search delegates to the underlying store.
func (r *CachedUserRepository) Search(ctx context.Context, query string, page, limit int64) ([]domain.User, int64, error) {
	return r.store.Search(ctx, query, page, limit)
}

// UpdatePair always reads fresh records inside the store transaction and
// then invalidates both cached records.
func (r *CachedUserRepository) UpdatePair(ctx context.Context, actorID, targetID string, fn domain.PairMutation) error {
	if err := r.store.UpdatePair(ctx, actorID, targetID, fn); err != nil {
		return err
	}
	r.invalidate(ctx, "update pair", actorID, targetID)
	return nil
}

// DeleteCascade deletes through the store and invalidates the user and every rewritten neighbour.
func (r *CachedUserRepository) DeleteCascade(ctx context.Context, id string) ([]string, error) {
	affected, err := r.store.DeleteCascade(ctx, id)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, "delete cascade", append([]string{id}, affected...)...)
	return affected, nil
}

// invalidate drops the records and bumps their versions, retrying briefly.
// It runs even when ctx is already cancelled: the store write it follows
// has committed.
func (r *CachedUserRepository) invalidate(ctx context.Context, op string, ids ...string) {
	for _, id := range ids {
		r.group.Forget(cache.Key(id))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.cache.Invalidate(ctx, ids...)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(invalidateAttempts))
	if err != nil {
		logger.WithContext(ctx, r.log).Error("failed to invalidate cache",
			zap.String("op", op), zap.Strings("ids", ids), zap.Error(err))
	}
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.Followers = append(domain.IDSet{}, u.Followers...)
	c.Following = append(domain.IDSet{}, u.Following...)
	return &c
}
