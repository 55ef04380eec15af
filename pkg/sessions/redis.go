package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/edpsych-connect/connect/pkg/observability"
)

// RedisStore keeps each session at <prefix>:<id> with a TTL matching its
// expiry. A sorted set at <prefix>:index, scored by expiry, lets Cleanup count
// and forget sessions Redis has already dropped.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	now     func() time.Time
	metrics *observability.Metrics
}

// NewRedisStore creates a RedisStore. prefix defaults to "connect:session".
func NewRedisStore(client *redis.Client, prefix string, metrics *observability.Metrics) *RedisStore {
	if prefix == "" {
		prefix = "connect:session"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now, metrics: metrics}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

func (s *RedisStore) Create(ctx context.Context, userID string, ttl time.Duration) (session *Session, err error) {
	defer s.observe("create_session", time.Now(), &err)

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	now := s.now().UTC()
	session = &Session{ID: id, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(id), data, ttl)
	pipe.ZAdd(ctx, s.indexKey(), &redis.Z{Score: float64(session.ExpiresAt.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	s.refreshGauge(ctx)
	return session, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (session *Session, err error) {
	defer s.observe("get_session", time.Now(), &err)

	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session = &Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (err error) {
	defer s.observe("delete_session", time.Now(), &err)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.refreshGauge(ctx)
	return nil
}

// Cleanup removes index entries whose expiry has passed. The session keys
// themselves are expired by Redis.
func (s *RedisStore) Cleanup(ctx context.Context) (n int, err error) {
	defer s.observe("cleanup_sessions", time.Now(), &err)

	cutoff := strconv.FormatInt(s.now().Unix(), 10)
	removed, err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", cutoff).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	s.refreshGauge(ctx)
	return int(removed), nil
}

func (s *RedisStore) refreshGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if count, err := s.client.ZCard(ctx, s.indexKey()).Result(); err == nil {
		s.metrics.ActiveSessionsGauge.Set(float64(count))
	}
}

func (s *RedisStore) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveStore(op, "redis", start, *err)
}
