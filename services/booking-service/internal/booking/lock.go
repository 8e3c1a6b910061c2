package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tutorhub/bookingengine/services/booking-service/internal/model"
)

// SlotLocker serialises booking attempts for the same slot. A held lock is
// reported as ErrSlotConflict. The lock narrows the recheck-then-create
// window; the recheck is still what guarantees correctness.
type SlotLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// LocalLocker only covers the current process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: another booking for this slot is in progress", model.ErrSlotConflict)
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker takes the local lock and then a SET NX PX lock shared by every
// replica. When Redis cannot be reached it keeps the local lock only.
type RedisLocker struct {
	rdb    *redis.Client
	local  *LocalLocker
	prefix string
	logger *slog.Logger
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisLocker {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "slotlock"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{rdb: rdb, local: NewLocalLocker(), prefix: prefix, logger: logger}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	unlockLocal, err := l.local.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	redisKey := l.prefix + ":" + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		l.logger.Warn("redis slot lock unavailable; using process lock only", "err", err, "slot", key)
		return unlockLocal, nil
	}
	if !ok {
		unlockLocal()
		return nil, fmt.Errorf("%w: another booking for this slot is in progress", model.ErrSlotConflict)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.rdb, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("redis slot lock release failed", "err", err, "slot", key)
		}
		unlockLocal()
	}, nil
}
