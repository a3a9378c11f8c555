package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is the subset of a stored session the realtime layer needs.
type Session struct {
	UserID  int64
	Expires *time.Time
}

// storedSession mirrors the JSON written by the HTTP login flow.
type storedSession struct {
	Cookie struct {
		Expires *time.Time `json:"expires"`
	} `json:"cookie"`
	UserID   json.RawMessage `json:"userId"`
	Passport struct {
		User json.RawMessage `json:"user"`
	} `json:"passport"`
}

// ParseSession decodes a stored session. The user id is taken from "userId"
// or "passport.user" and may be a number or a numeric string.
func ParseSession(data []byte) (*Session, error) {
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	userID := parseUserID(stored.UserID)
	if userID == 0 {
		userID = parseUserID(stored.Passport.User)
	}

	return &Session{UserID: userID, Expires: stored.Cookie.Expires}, nil
}

func parseUserID(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// RedisSessionStore reads sessions saved by the HTTP tier into Redis.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore creates a store reading keys "<prefix><sid>".
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// Get returns the session for sid, or nil when it is absent or expired.
func (s *RedisSessionStore) Get(ctx context.Context, sid string) (*Session, error) {
	data, err := s.client.Get(ctx, s.prefix+sid).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session store get error: %w", err)
	}

	session, err := ParseSession(data)
	if err != nil {
		return nil, err
	}
	if session.Expires != nil && !session.Expires.After(s.now()) {
		return nil, nil
	}
	return session, nil
}

// Ping checks the Redis connection.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
