// internal/notifications/behavior.go

package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// BehaviorStore serves per-user behavior patterns. Patterns are computed
// by the analytics pipeline and stored in Postgres; reads go through a
// Redis cache that interaction events invalidate.
type BehaviorStore interface {
	Get(ctx context.Context, userID int64) (*BehaviorPattern, error)
	Invalidate(ctx context.Context, userID int64) error
}

const (
	behaviorKeyPrefix       = "notifications:behavior:"
	defaultBehaviorCacheTTL = 15 * time.Minute
)

// CachedBehaviorStore reads patterns through Redis with a Postgres fallback
type CachedBehaviorStore struct {
	repo  Repository
	cache *redis.Client
	ttl   time.Duration
}

// NewCachedBehaviorStore creates a behavior store with Redis caching.
// A nil cache client degrades to direct repository reads; a non-positive
// ttl falls back to the default.
func NewCachedBehaviorStore(repo Repository, cache *redis.Client, ttl time.Duration) *CachedBehaviorStore {
	if ttl <= 0 {
		ttl = defaultBehaviorCacheTTL
	}
	return &CachedBehaviorStore{repo: repo, cache: cache, ttl: ttl}
}

// Get returns the user's behavior pattern or nil when none has been
// computed yet. The scorer treats a nil pattern as neutral, so a cold
// user never blocks a send.
func (s *CachedBehaviorStore) Get(ctx context.Context, userID int64) (*BehaviorPattern, error) {
	key := behaviorKey(userID)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		if err == nil {
			var pattern BehaviorPattern
			if err := json.Unmarshal(raw, &pattern); err == nil {
				return &pattern, nil
			}
			// Corrupt cache entry, fall through to the database
			s.cache.Del(ctx, key)
		} else if err != redis.Nil {
			log.Printf("Behavior cache read failed for user %d: %v", userID, err)
		}
	}

	pattern, err := s.repo.GetBehaviorPattern(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load behavior pattern: %w", err)
	}

	if s.cache != nil {
		if raw, err := json.Marshal(pattern); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
				log.Printf("Behavior cache write failed for user %d: %v", userID, err)
			}
		}
	}

	return pattern, nil
}

// Invalidate drops the cached pattern so the next read sees fresh data
func (s *CachedBehaviorStore) Invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, behaviorKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate behavior cache: %w", err)
	}
	return nil
}

func behaviorKey(userID int64) string {
	return fmt.Sprintf("%s%d", behaviorKeyPrefix, userID)
}
