package repository

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailtriage/contracts/db"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// Cache is the subset of the redis client used for lookups.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// UserStore is implemented by UserRepository.
type UserStore interface {
	Resolve(ctx context.Context, email string) (*model.KnownUser, error)
	MarkForwardConfirmed(ctx context.Context, email string) error
}

// CachedUserRepository caches positive lookups in Redis. Unknown users are
// not cached so a newly linked account is seen immediately. Redis failures
// fall back to the store.
type CachedUserRepository struct {
	store  UserStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedUserRepository(store UserStore, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedUserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedUserRepository{store: store, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(email string) string {
	return "user:" + normalizeEmail(email)
}

func (r *CachedUserRepository) Resolve(ctx context.Context, email string) (*model.KnownUser, error) {
	log := logger.WithTrace(ctx, r.logger)
	key := cacheKey(email)

	data, err := r.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var row db.User
		if jsonErr := json.Unmarshal(data, &row); jsonErr == nil {
			return toKnownUser(row), nil
		}
		log.Warn("Discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		log.Warn("User cache unavailable", zap.Error(err))
	}

	u, err := r.store.Resolve(ctx, email)
	if err != nil || u == nil {
		return u, err
	}

	if data, err := json.Marshal(fromKnownUser(u)); err == nil {
		if err := r.cache.Set(ctx, key, data, r.ttl).Err(); err != nil {
			log.Warn("Failed to cache user", zap.Error(err))
		}
	}
	return u, nil
}

func (r *CachedUserRepository) Exists(ctx context.Context, email string) (bool, error) {
	u, err := r.Resolve(ctx, email)
	return u != nil, err
}

// MarkForwardConfirmed updates the store and invalidates the cached entry.
func (r *CachedUserRepository) MarkForwardConfirmed(ctx context.Context, email string) error {
	if err := r.store.MarkForwardConfirmed(ctx, email); err != nil {
		return err
	}
	if err := r.cache.Del(ctx, cacheKey(email)).Err(); err != nil {
		logger.WithTrace(ctx, r.logger).Warn("Failed to invalidate user cache", zap.Error(err))
	}
	return nil
}

func fromKnownUser(u *model.KnownUser) db.User {
	row := db.User{Email: u.Email, ForwardConfirmed: u.ForwardConfirmed, UpdatedAt: time.Now().UTC()}
	if u.MessagingID != "" {
		id := u.MessagingID
		row.TelegramID = &id
	}
	return row
}

func toKnownUser(row db.User) *model.KnownUser {
	u := &model.KnownUser{Email: row.Email, ForwardConfirmed: row.ForwardConfirmed}
	if row.TelegramID != nil {
		u.MessagingID = *row.TelegramID
	}
	return u
}
