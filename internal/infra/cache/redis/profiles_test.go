package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"venuehub/internal/app/profiles"
)

type countingSource struct {
	items map[string]profiles.Profile
	calls int
}

func (s *countingSource) Profile(ctx context.Context, userID string) (profiles.Profile, error) {
	s.calls++
	p, ok := s.items[userID]
	if !ok {
		return profiles.Profile{}, profiles.ErrNotFound
	}
	return p, nil
}

func newCache(t *testing.T, src profiles.Source) (*ProfileCache, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewProfileCache(client, src, time.Minute, nil), server
}

func TestProfileCacheReadsThrough(t *testing.T) {
	src := &countingSource{items: map[string]profiles.Profile{"u1": {UserID: "u1", DisplayName: "Ana"}}}
	cache, server := newCache(t, src)
	ctx := context.Background()

	p, err := cache.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ana", p.DisplayName)

	p, err = cache.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ana", p.DisplayName)
	require.Equal(t, 1, src.calls)
	require.True(t, server.Exists("profile:u1"))

	server.FastForward(2 * time.Minute)
	_, err = cache.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestProfileCacheInvalidate(t *testing.T) {
	src := &countingSource{items: map[string]profiles.Profile{"u1": {UserID: "u1", DisplayName: "Ana"}}}
	cache, server := newCache(t, src)
	ctx := context.Background()

	_, err := cache.Profile(ctx, "u1")
	require.NoError(t, err)
	src.items["u1"] = profiles.Profile{UserID: "u1", DisplayName: "Ana Maria"}

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	require.False(t, server.Exists("profile:u1"))

	p, err := cache.Profile(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Ana Maria", p.DisplayName)
}

func TestProfileCacheDoesNotCacheMissing(t *testing.T) {
	src := &countingSource{items: map[string]profiles.Profile{}}
	cache, server := newCache(t, src)

	_, err := cache.Profile(context.Background(), "ghost")
	require.ErrorIs(t, err, profiles.ErrNotFound)
	require.False(t, server.Exists("profile:ghost"))
}

func TestProfileCacheSurvivesRedisOutage(t *testing.T) {
	src := &countingSource{items: map[string]profiles.Profile{"u1": {UserID: "u1", Email: "ana@example.com"}}}
	cache, server := newCache(t, src)
	server.Close()

	p, err := cache.Profile(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", p.Email)
}
