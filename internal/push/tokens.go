package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps each user's registered device push tokens in a Redis set.
// A user may hold several tokens (phone plus browser).
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore connects to Redis.
func NewTokenStore(addr, password string) *TokenStore {
	return &TokenStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

func tokenKey(userID string) string {
	return fmt.Sprintf("push:tokens:%s", userID)
}

// Register adds a device token for the user. Idempotent.
func (s *TokenStore) Register(ctx context.Context, userID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("push token required")
	}
	return s.client.SAdd(ctx, tokenKey(userID), token).Err()
}

// Unregister removes a device token, e.g. after the vendor reports it stale.
func (s *TokenStore) Unregister(ctx context.Context, userID, token string) error {
	return s.client.SRem(ctx, tokenKey(userID), token).Err()
}

// Tokens returns every device token registered for the user.
func (s *TokenStore) Tokens(ctx context.Context, userID string) ([]string, error) {
	return s.client.SMembers(ctx, tokenKey(userID)).Result()
}

// Close releases the Redis client.
func (s *TokenStore) Close() error {
	return s.client.Close()
}
