package upload

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limits caps uploads per account over two sliding windows.
type Limits struct {
	PerMinute int
	PerHour   int
}

// DefaultLimits matches the public upload quota.
var DefaultLimits = Limits{PerMinute: 5, PerHour: 50}

func (l Limits) withDefaults() Limits {
	if l.PerMinute <= 0 {
		l.PerMinute = DefaultLimits.PerMinute
	}
	if l.PerHour <= 0 {
		l.PerHour = DefaultLimits.PerHour
	}
	return l
}

// Usage reports an account's recent uploads against its quota.
type Usage struct {
	UserID          string `json:"userId"`
	LastMinute      int    `json:"uploadsLastMinute"`
	MaxPerMinute    int    `json:"maxUploadsPerMinute"`
	LastHour        int    `json:"uploadsLastHour"`
	MaxPerHour      int    `json:"maxUploadsPerHour"`
	RemainingMinute int    `json:"remainingMinute"`
	RemainingHour   int    `json:"remainingHour"`
}

func newUsage(userID string, minute, hour int, l Limits) Usage {
	return Usage{
		UserID:          userID,
		LastMinute:      minute,
		MaxPerMinute:    l.PerMinute,
		LastHour:        hour,
		MaxPerHour:      l.PerHour,
		RemainingMinute: max(0, l.PerMinute-minute),
		RemainingHour:   max(0, l.PerHour-hour),
	}
}

// check returns a *LimitError when u is at either cap.
func (u Usage) check() error {
	if u.LastMinute >= u.MaxPerMinute {
		return &LimitError{Count: u.LastMinute, Max: u.MaxPerMinute, Window: "minute"}
	}
	if u.LastHour >= u.MaxPerHour {
		return &LimitError{Count: u.LastHour, Max: u.MaxPerHour, Window: "hour"}
	}
	return nil
}

// Limiter tracks successful uploads per account.
type Limiter interface {
	// Check returns a *LimitError when another upload would exceed a quota.
	Check(ctx context.Context, userID string) error
	// Record counts one successful upload.
	Record(ctx context.Context, userID string) error
	Usage(ctx context.Context, userID string) (Usage, error)
}

// ─── In-memory ──────────────────────────────────────────────

// MemoryLimiter keeps upload timestamps in process. Counts are per instance.
type MemoryLimiter struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]time.Time
}

// NewMemoryLimiter returns a MemoryLimiter enforcing l.
func NewMemoryLimiter(l Limits) *MemoryLimiter {
	return &MemoryLimiter{
		limits:  l.withDefaults(),
		now:     time.Now,
		history: make(map[string][]time.Time),
	}
}

func (m *MemoryLimiter) Check(ctx context.Context, userID string) error {
	u, err := m.Usage(ctx, userID)
	if err != nil {
		return err
	}
	return u.check()
}

func (m *MemoryLimiter) Record(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.history[userID] = append(m.prune(userID, now), now)
	return nil
}

func (m *MemoryLimiter) Usage(_ context.Context, userID string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := m.prune(userID, now)
	minute := 0
	for _, ts := range recent {
		if now.Sub(ts) < time.Minute {
			minute++
		}
	}
	return newUsage(userID, minute, len(recent), m.limits), nil
}

// prune drops entries older than an hour. Caller holds mu.
func (m *MemoryLimiter) prune(userID string, now time.Time) []time.Time {
	entries := m.history[userID]
	kept := entries[:0]
	for _, ts := range entries {
		if now.Sub(ts) < time.Hour {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(m.history, userID)
		return nil
	}
	m.history[userID] = kept
	return kept
}

// ─── Redis ──────────────────────────────────────────────────

// RedisLimiter keeps one sorted set per account scored by upload time in
// milliseconds, so quotas hold across instances.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limits Limits
	now    func() time.Time
}

// NewRedisLimiter returns a RedisLimiter storing keys under prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string, l Limits) *RedisLimiter {
	if prefix == "" {
		prefix = "upload:ratelimit:"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limits: l.withDefaults(),
		now:    time.Now,
	}
}

func (r *RedisLimiter) key(userID string) string {
	return r.prefix + userID
}

func (r *RedisLimiter) Check(ctx context.Context, userID string) error {
	u, err := r.Usage(ctx, userID)
	if err != nil {
		return err
	}
	return u.check()
}

func (r *RedisLimiter) Record(ctx context.Context, userID string) error {
	now := r.now()
	key := r.key(userID)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func (r *RedisLimiter) Usage(ctx context.Context, userID string) (Usage, error) {
	now := r.now()
	key := r.key(userID)
	hourAgo := strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)
	minuteAgo := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", hourAgo)
	minute := pipe.ZCount(ctx, key, "("+minuteAgo, "+inf")
	hour := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Usage{}, fmt.Errorf("read upload usage: %w", err)
	}
	return newUsage(userID, int(minute.Val()), int(hour.Val()), r.limits), nil
}
