package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "social-graph-service/internal/domain/user"
	"social-graph-service/pkg/logger"
)

// UserCache defines the interface for user record caching.
//
// Every record has a version that Invalidate bumps. A loader reads the
// version before it reads the store and passes it to Set, so a record loaded
// before an invalidation can never be written back after it.
type UserCache interface {
	// Get retrieves a user record from cache by ID.
	// Returns nil if the record is not in cache.
	Get(ctx context.Context, id string) (*domain.User, error)

	// GetMultiple retrieves the cached records among ids in one round trip.
	// Misses are absent from the map.
	GetMultiple(ctx context.Context, ids []string) (map[string]*domain.User, error)

	// Versions returns the current version of each id. Never-invalidated ids
	// have the empty version.
	Versions(ctx context.Context, ids ...string) (map[string]string, error)

	// Set stores the record only if its version still equals version.
	// It reports whether the record was stored.
	Set(ctx context.Context, user *domain.User, version string) (bool, error)

	// Invalidate removes the records and bumps their versions atomically.
	Invalidate(ctx context.Context, ids ...string) error
}

// minVersionTTL keeps versions well past any in-flight load. An expired
// version reads as empty.
const minVersionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[2].
var setIfVersion = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '' end
if current ~= ARGV[2] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisUserCache implements UserCache using Redis as the backing store.
type RedisUserCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionTTL time.Duration
	log        *zap.Logger
}

// NewRedisUserCache creates a new Redis-backed user cache.
func NewRedisUserCache(client *redis.Client, ttl time.Duration, log *zap.Logger) UserCache {
	return &RedisUserCache{
		client:     client,
		ttl:        ttl,
		versionTTL: max(ttl, minVersionTTL),
		log:        log,
	}
}

// entry is the cached JSON shape of a user record.
type entry struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Bio        string    `json:"bio,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Credential string    `json:"credential"`
	Followers  []string  `json:"followers"`
	Following  []string  `json:"following"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key returns the Redis key for a user ID.
func Key(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// VersionKey returns the Redis key holding the version of a user record.
func VersionKey(id string) string {
	return fmt.Sprintf("user_version:%s", id)
}

func keys(ids []string, key func(string) string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = key(id)
	}
	return out
}

// Get retrieves a user record from Redis.
func (c *RedisUserCache) Get(ctx context.Context, id string) (*domain.User, error) {
	log := logger.WithContext(ctx, c.log)

	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		log.Debug("cache miss", zap.String("user_id", id))
		return nil, nil
	}
	if err != nil {
		log.Error("failed to get from cache", zap.String("user_id", id), zap.Error(err))
		return nil, err
	}

	u, err := decode(data)
	if err != nil {
		log.Error("failed to unmarshal cached user", zap.String("user_id", id), zap.Error(err))
		return nil, err
	}

	log.Debug("cache hit", zap.String("user_id", id))
	return u, nil
}

// GetMultiple fetches several records with a single MGET. Corrupt entries
// count as misses.
func (c *RedisUserCache) GetMultiple(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	found := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	log := logger.WithContext(ctx, c.log)

	values, err := c.client.MGet(ctx, keys(ids, Key)...).Result()
	if err != nil {
		log.Error("failed to get from cache", zap.Int("count", len(ids)), zap.Error(err))
		return nil, err
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		u, err := decode([]byte(s))
		if err != nil {
			log.Warn("dropping corrupt cache entry", zap.String("user_id", ids[i]), zap.Error(err))
			continue
		}
		found[ids[i]] = u
	}

	log.Debug("cache multi get", zap.Int("requested", len(ids)), zap.Int("hits", len(found)))
	return found, nil
}

// Versions reads the versions of ids with a single MGET.
func (c *RedisUserCache) Versions(ctx context.Context, ids ...string) (map[string]string, error) {
	versions := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return versions, nil
	}

	values, err := c.client.MGet(ctx, keys(ids, VersionKey)...).Result()
	if err != nil {
		logger.WithContext(ctx, c.log).Error("failed to read cache versions", zap.Strings("user_ids", ids), zap.Error(err))
		return nil, err
	}
	for i, v := range values {
		s, _ := v.(string)
		versions[ids[i]] = s
	}
	return versions, nil
}

// Set stores a user record in Redis with TTL unless it was invalidated
// since version was read.
func (c *RedisUserCache) Set(ctx context.Context, user *domain.User, version string) (bool, error) {
	if user == nil {
		return false, errors.New("cannot cache nil user")
	}
	log := logger.WithContext(ctx, c.log)

	data, err := json.Marshal(entry{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Bio:        user.Bio,
		Avatar:     user.Avatar,
		Credential: user.Credential,
		Followers:  user.Followers,
		Following:  user.Following,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	})
	if err != nil {
		log.Error("failed to marshal user for cache", zap.String("user_id", user.ID), zap.Error(err))
		return false, err
	}

	stored, err := setIfVersion.Run(ctx, c.client,
		[]string{Key(user.ID), VersionKey(user.ID)},
		data, version, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		log.Error("failed to set cache", zap.String("user_id", user.ID), zap.Error(err))
		return false, err
	}

	if stored == 0 {
		log.Debug("skipped caching invalidated user", zap.String("user_id", user.ID), zap.String("version", version))
		return false, nil
	}
	log.Debug("cached user", zap.String("user_id", user.ID), zap.Duration("ttl", c.ttl))
	return true, nil
}

// Invalidate deletes the records and bumps their versions in one MULTI/EXEC.
func (c *RedisUserCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, VersionKey(id))
			pipe.PExpire(ctx, VersionKey(id), c.versionTTL)
		}
		pipe.Del(ctx, keys(ids, Key)...)
		return nil
	})
	if err != nil {
		logger.WithContext(ctx, c.log).Error("failed to invalidate cache", zap.Strings("user_ids", ids), zap.Error(err))
		return err
	}

	logger.WithContext(ctx, c.log).Debug("invalidated cache", zap.Int("count", len(ids)))
	return nil
}

func decode(data []byte) (*domain.User, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &domain.User{
		ID:         e.ID,
		Username:   e.Username,
		Email:      e.Email,
		Bio:        e.Bio,
		Avatar:     e.Avatar,
		Credential: e.Credential,
		Followers:  domain.IDSet(nonNil(e.Followers)),
		Following:  domain.IDSet(nonNil(e.Following)),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
