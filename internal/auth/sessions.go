package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"calorie_tracker/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionKeyPrefix is the Redis key prefix for session records
	SessionKeyPrefix = "session:"
	// UserSessionsPrefix keys the set of a user's session IDs
	UserSessionsPrefix = "user_session:"
)

// RedisSessionStore keeps session records in Redis; expiry is the key TTL
type RedisSessionStore struct {
	rdb redis.Cmdable
}

func NewRedisSessionStore(rdb redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

func (s *RedisSessionStore) Save(ctx context.Context, sess domain.Session) error {
	ttl := sess.ExpiresAt.Sub(sess.CreatedAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	// Every session has the same lifetime, so the newest one expires last
	// and may set the expiry of the user's set.
	userKey := UserSessionsPrefix + sess.UserID
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, SessionKeyPrefix+sess.ID, b, ttl)
	pipe.SAdd(ctx, userKey, sess.ID)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	b, err := s.rdb.Get(ctx, SessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Delete is a no-op for unknown IDs
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, SessionKeyPrefix+id)
	pipe.SRem(ctx, UserSessionsPrefix+sess.UserID, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteUser removes every live session of userID
func (s *RedisSessionStore) DeleteUser(ctx context.Context, userID string) error {
	userKey := UserSessionsPrefix + userID
	ids, err := s.rdb.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, SessionKeyPrefix+id)
	}
	keys = append(keys, userKey)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}
