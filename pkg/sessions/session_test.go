package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edpsych-connect/connect/pkg/observability"
)

var start = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func TestMemoryStore(t *testing.T) {
	now := start
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewMemoryStore(WithClock(func() time.Time { return now }), WithMetrics(metrics))
	ctx := context.Background()

	session, err := store.Create(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	assert.Len(t, session.ID, 64)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, start.Add(time.Hour), session.ExpiresAt)

	other, err := store.Create(ctx, "user-2", 0)
	require.NoError(t, err)
	assert.Equal(t, start.Add(DefaultTTL), other.ExpiresAt)
	assert.NotEqual(t, session.ID, other.ID)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSessionsGauge))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)

	now = start.Add(time.Hour)
	_, err = store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound, "expired sessions are not returned")

	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessionsGauge))

	require.NoError(t, store.Delete(ctx, other.ID))
	require.NoError(t, store.Delete(ctx, other.ID))
	_, err = store.Get(ctx, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessionsGauge))
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewRedisStore(client, "", metrics)
	store.now = func() time.Time { return start }
	return store, mr, metrics
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	store, mr, metrics := newRedisStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx, "user-1", 30*time.Minute)
	require.NoError(t, err)

	key := "connect:session:" + session.ID
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Minute, mr.TTL(key))

	got, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessionsGauge))

	mr.FastForward(31 * time.Minute)
	_, err = store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		metrics.StoreOperationsTotal.WithLabelValues("create_session", "redis", "success")))
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	ctx := context.Background()

	session, err := store.Create(ctx, "user-1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, session.ID))
	assert.False(t, mr.Exists("connect:session:"+session.ID))
	_, err = store.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "never-existed"))
}

func TestRedisStore_Cleanup(t *testing.T) {
	store, _, metrics := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	_, err = store.Create(ctx, "user-2", time.Hour)
	require.NoError(t, err)

	store.now = func() time.Time { return start.Add(2 * time.Minute) }
	removed, err := store.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessionsGauge))
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	mr.Close()

	_, err := store.Create(context.Background(), "user-1", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store session")

	_, err = store.Get(context.Background(), "id")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
