package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goal_planner/internal/state"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "goal_planner:session:"

type Client struct {
	rdb *redis.Client
}

func Initialize(ctx context.Context, redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// SessionCache stores session snapshots as JSON strings with a sliding TTL:
// every save pushes expiry out again.
type SessionCache struct {
	client *Client
	ttl    time.Duration
}

func NewSessionCache(client *Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionCache) Load(ctx context.Context, sessionID string) (*state.State, error) {
	val, err := s.client.rdb.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var st state.State
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}
	return &st, nil
}

func (s *SessionCache) Save(ctx context.Context, sessionID string, st *state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}
	return s.client.rdb.Set(ctx, sessionKey(sessionID), data, s.ttl).Err()
}

func (s *SessionCache) Delete(ctx context.Context, sessionID string) error {
	return s.client.rdb.Del(ctx, sessionKey(sessionID)).Err()
}
