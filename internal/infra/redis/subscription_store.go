package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SubscriptionStore keeps per-user access expiry in Redis. The value is the
// expiry instant in RFC 3339 form; the key's own TTL is aligned with it so
// lapsed subscriptions garbage-collect themselves.
type SubscriptionStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewSubscriptionStore(client *redis.Client) *SubscriptionStore {
	return &SubscriptionStore{client: client, clock: time.Now}
}

func (s *SubscriptionStore) SetExpiry(ctx context.Context, userID int64, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.clock())
	if ttl <= 0 {
		// Writing an already-lapsed expiry just deletes any stale key.
		return s.client.Del(ctx, s.key(userID)).Err()
	}
	return s.client.Set(ctx, s.key(userID), expiresAt.UTC().Format(time.RFC3339Nano), ttl).Err()
}

func (s *SubscriptionStore) Expiry(ctx context.Context, userID int64) (time.Time, bool, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	expiry, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return expiry, true, nil
}

func (s *SubscriptionStore) key(userID int64) string {
	return "sub:" + strconv.FormatInt(userID, 10)
}
