package identity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

// CachedResolver puts a Redis TTL cache in front of point lookups. Profile
// reads dominate because every conversation row resolves its other
// participant; searches stay uncached and always hit the directory.
type CachedResolver struct {
	inner Resolver
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedResolver(inner Resolver, rdb *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, rdb: rdb, ttl: ttl}
}

func profileKey(userID string) string { return "chatsync:profile:" + userID }

func (r *CachedResolver) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if b, err := r.rdb.Get(ctx, profileKey(userID)).Bytes(); err == nil {
		var p models.Profile
		if json.Unmarshal(b, &p) == nil {
			return &p, nil
		}
	}
	p, err := r.inner.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(p); err == nil {
		_ = r.rdb.Set(ctx, profileKey(userID), b, r.ttl).Err()
	}
	return p, nil
}

func (r *CachedResolver) SearchProfiles(ctx context.Context, term string) ([]*models.Profile, error) {
	return r.inner.SearchProfiles(ctx, term)
}
