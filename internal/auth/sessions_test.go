package auth

import (
	"context"
	"testing"
	"time"

	"calorie_tracker/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionStore(rdb), mr
}

func TestRedisSessionStore_SaveGetDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	sess := domain.Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	require.NoError(t, store.Save(ctx, sess))
	assert.Equal(t, time.Hour, mr.TTL(SessionKeyPrefix+"s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt))

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "s1"))
}

func TestRedisSessionStore_RejectsExpired(t *testing.T) {
	store, _ := newTestStore(t)
	now := time.Now()

	err := store.Save(context.Background(), domain.Session{ID: "s1", UserID: "u1", CreatedAt: now, ExpiresAt: now})
	assert.Error(t, err)
}

func TestRedisSessionStore_TracksUserSessions(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"s1", "s2"} {
		require.NoError(t, store.Save(ctx, domain.Session{ID: id, UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))
	}
	require.NoError(t, store.Save(ctx, domain.Session{ID: "s3", UserID: "u2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	members, err := mr.Members(UserSessionsPrefix + "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, members)
	assert.Equal(t, time.Hour, mr.TTL(UserSessionsPrefix+"u1"))

	require.NoError(t, store.Delete(ctx, "s1"))
	members, err = mr.Members(UserSessionsPrefix + "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, members)

	require.NoError(t, store.DeleteUser(ctx, "u1"))
	_, err = store.Get(ctx, "s2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, mr.Exists(UserSessionsPrefix+"u1"))

	// other users keep their sessions
	_, err = store.Get(ctx, "s3")
	assert.NoError(t, err)

	assert.NoError(t, store.DeleteUser(ctx, "nobody"))
}
