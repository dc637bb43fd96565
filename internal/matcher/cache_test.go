package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *Cache) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewCache(client, "kikidoko:eqnet:master", time.Hour, zap.NewNop())
}

func TestCache_MissThenHit(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx)
	assert.False(t, ok)

	candidates := []Candidate{
		NewCandidate("1", "走査電子顕微鏡", "東京大学"),
		NewCandidate("2", "透過型電子顕微鏡", "京都大学"),
	}
	cache.Put(ctx, candidates)

	loaded, ok := cache.Get(ctx)
	require.True(t, ok)
	require.Len(t, loaded, 2)
	assert.Equal(t, "1", loaded[0].ID)
	assert.Equal(t, candidates[0].NormalizedName, loaded[0].NormalizedName)
}

func TestCache_CorruptPayloadIsMiss(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("kikidoko:eqnet:master", "not-json"))
	_, ok := cache.Get(ctx)
	assert.False(t, ok)
}

func TestCache_TTLSet(t *testing.T) {
	mr, cache := setupCache(t)
	ctx := context.Background()

	cache.Put(ctx, []Candidate{NewCandidate("1", "X線回折装置", "北海道大学")})
	assert.Greater(t, mr.TTL("kikidoko:eqnet:master"), time.Duration(0))
}

func TestLoadMaster_CacheHitSkipsHTTP(t *testing.T) {
	_, cache := setupCache(t)
	ctx := context.Background()

	candidates := []Candidate{NewCandidate("1", "走査電子顕微鏡", "東京大学")}
	cache.Put(ctx, candidates)

	// クライアントは無効URL：キャッシュヒットならHTTPに到達しない
	client := NewClient("http://127.0.0.1:1/unreachable", time.Second, zap.NewNop())
	loaded, total, err := LoadMaster(ctx, client, cache)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, loaded, 1)
}

func TestLoadMaster_HTTPFailureAborts(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/unreachable", time.Second, zap.NewNop())
	_, _, err := LoadMaster(context.Background(), client, nil)
	assert.Error(t, err)
}
