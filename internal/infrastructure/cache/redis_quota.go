package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// KeyVersion is bumped whenever the hash layout changes.
const KeyVersion = "v1"

const (
	fieldTier        = "tier"
	fieldUsed        = "used"
	fieldLimit       = "limit"
	fieldPeriodStart = "period_start"
	fieldUpdatedAt   = "updated_at"
)

// RedisQuotaStore keeps each user's quota in a hash. Writes that must check
// before incrementing hold a per-user redsync mutex.
type RedisQuotaStore struct {
	client  redis.UniversalClient
	rs      *redsync.Redsync
	lockTTL time.Duration
	log     zerolog.Logger
}

var (
	_ usage.QuotaStore    = (*RedisQuotaStore)(nil)
	_ usage.QuotaReserver = (*RedisQuotaStore)(nil)
	_ usage.QuotaAdmin    = (*RedisQuotaStore)(nil)
)

// NewRedisQuotaStore connects to redisURL, which may list several
// comma separated addresses for a cluster.
func NewRedisQuotaStore(ctx context.Context, redisURL string, lockTTL time.Duration, log zerolog.Logger) (*RedisQuotaStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}
	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("ignoring non-zero DB for redis cluster")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Msg("connected to redis quota store")
	return NewRedisQuotaStoreWithClient(client, lockTTL, log), nil
}

// NewRedisQuotaStoreWithClient wraps an existing client.
func NewRedisQuotaStoreWithClient(client redis.UniversalClient, lockTTL time.Duration, log zerolog.Logger) *RedisQuotaStore {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &RedisQuotaStore{
		client:  client,
		rs:      redsync.New(goredis.NewPool(client)),
		lockTTL: lockTTL,
		log:     log.With().Str("component", "redis-quota").Logger(),
	}
}

func quotaKey(userID string) string {
	return fmt.Sprintf("orchestrator:quota:%s:%s", KeyVersion, userID)
}

func indexKey() string {
	return fmt.Sprintf("orchestrator:quota:%s:users", KeyVersion)
}

func lockName(userID string) string {
	return fmt.Sprintf("orchestrator:quota-lock:%s", userID)
}

func (s *RedisQuotaStore) GetQuota(ctx context.Context, userID string) (*usage.Quota, error) {
	fields, err := s.client.HGetAll(ctx, quotaKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read quota: %w", err)
	}
	return decodeQuota(userID, fields)
}

func (s *RedisQuotaStore) AddUsage(ctx context.Context, userID string, tokens int64) error {
	return s.withLock(ctx, userID, func() error {
		return s.adjust(ctx, userID, tokens)
	})
}

// Reserve checks the limit and increments under the user's lock.
func (s *RedisQuotaStore) Reserve(ctx context.Context, userID string, tokens int64) (*usage.Quota, error) {
	var reserved *usage.Quota
	err := s.withLock(ctx, userID, func() error {
		q, err := s.GetQuota(ctx, userID)
		if err != nil {
			return err
		}
		if !q.Allows() {
			return usage.ErrQuotaExceeded
		}
		used, err := s.client.HIncrBy(ctx, quotaKey(userID), fieldUsed, tokens).Result()
		if err != nil {
			return fmt.Errorf("reserve tokens: %w", err)
		}
		q.TokensUsed = used
		reserved = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reserved, nil
}

func (s *RedisQuotaStore) Commit(ctx context.Context, userID string, reserved, actual int64) error {
	return s.withLock(ctx, userID, func() error {
		return s.adjust(ctx, userID, actual-reserved)
	})
}

func (s *RedisQuotaStore) Release(ctx context.Context, userID string, reserved int64) error {
	return s.withLock(ctx, userID, func() error {
		return s.adjust(ctx, userID, -reserved)
	})
}

// adjust must run under the user's lock so the floor at zero holds.
func (s *RedisQuotaStore) adjust(ctx context.Context, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	key := quotaKey(userID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if exists == 0 {
		return usage.ErrQuotaNotFound
	}
	used, err := s.client.HIncrBy(ctx, key, fieldUsed, delta).Result()
	if err != nil {
		return fmt.Errorf("update usage: %w", err)
	}
	if used < 0 {
		if err := s.client.HSet(ctx, key, fieldUsed, 0).Err(); err != nil {
			return fmt.Errorf("clamp usage: %w", err)
		}
	}
	return s.client.HSet(ctx, key, fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

func (s *RedisQuotaStore) SetTier(ctx context.Context, userID string, tier usage.Tier, now time.Time) (*usage.Quota, error) {
	var updated *usage.Quota
	err := s.withLock(ctx, userID, func() error {
		q, err := s.GetQuota(ctx, userID)
		if errors.Is(err, usage.ErrQuotaNotFound) {
			fresh := usage.NewQuota(userID, tier, now)
			q, err = &fresh, nil
		}
		if err != nil {
			return err
		}
		q.Tier = tier
		q.MonthlyLimit = tier.Limit()
		q.UpdatedAt = now
		if err := s.write(ctx, *q); err != nil {
			return err
		}
		updated = q
		return nil
	})
	return updated, err
}

// ResetExpired walks the user index and starts a new period where one ended.
func (s *RedisQuotaStore) ResetExpired(ctx context.Context, now time.Time) (int64, error) {
	users, err := s.client.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list quota users: %w", err)
	}
	var reset int64
	for _, userID := range users {
		err := s.withLock(ctx, userID, func() error {
			q, err := s.GetQuota(ctx, userID)
			if err != nil {
				return err
			}
			if !q.Expired(now) {
				return nil
			}
			q.TokensUsed = 0
			q.PeriodStart = usage.PeriodStartFor(now)
			q.UpdatedAt = now
			if err := s.write(ctx, *q); err != nil {
				return err
			}
			reset++
			return nil
		})
		if err != nil && !errors.Is(err, usage.ErrQuotaNotFound) {
			return reset, err
		}
	}
	return reset, nil
}

func (s *RedisQuotaStore) write(ctx context.Context, q usage.Quota) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, quotaKey(q.UserID), encodeQuota(q))
	pipe.SAdd(ctx, indexKey(), q.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write quota: %w", err)
	}
	return nil
}

// HealthCheck pings redis.
func (s *RedisQuotaStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisQuotaStore) Close() error {
	return s.client.Close()
}

func (s *RedisQuotaStore) withLock(ctx context.Context, userID string, fn func() error) error {
	mutex := s.rs.NewMutex(lockName(userID), redsync.WithExpiry(s.lockTTL))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("lock quota %s: %w", userID, err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("unlock quota mutex")
		}
	}()
	return fn()
}

func encodeQuota(q usage.Quota) map[string]any {
	return map[string]any{
		fieldTier:        string(q.Tier),
		fieldUsed:        q.TokensUsed,
		fieldLimit:       q.MonthlyLimit,
		fieldPeriodStart: q.PeriodStart.UTC().Format(time.RFC3339),
		fieldUpdatedAt:   q.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeQuota(userID string, fields map[string]string) (*usage.Quota, error) {
	if len(fields) == 0 {
		return nil, usage.ErrQuotaNotFound
	}
	q := &usage.Quota{UserID: userID, Tier: usage.Tier(fields[fieldTier])}
	var err error
	if q.TokensUsed, err = parseInt(fields, fieldUsed); err != nil {
		return nil, err
	}
	if q.MonthlyLimit, err = parseInt(fields, fieldLimit); err != nil {
		return nil, err
	}
	if raw := fields[fieldPeriodStart]; raw != "" {
		if q.PeriodStart, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldPeriodStart, err)
		}
	}
	if raw := fields[fieldUpdatedAt]; raw != "" {
		q.UpdatedAt, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return q, nil
}

func parseInt(fields map[string]string, name string) (int64, error) {
	raw := fields[name]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses provided")
	}
	return opts, nil
}
