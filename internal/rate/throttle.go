package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const unknownActor = "unknown"

// slidingWindowLua records one attempt in a sorted-set log if the log holds
// fewer than limit attempts at or after now-window. An attempt exactly one
// window old still counts.
// KEYS[1] = log key
// ARGV[1] = now (unix ms)
// ARGV[2] = window (ms)
// ARGV[3] = limit
// ARGV[4] = attempt member
//
// Returns 1 when the attempt was recorded, 0 when it was rejected.
// Rejected attempts are not recorded.
var slidingWindowLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  return 0
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return 1
`)

// Throttle bounds repeated operations per (action, actor) pair over a
// sliding window. Each check is a single atomic script call, so concurrent
// callers sharing one Redis never see more than limit admissions in any
// window-length interval.
type Throttle struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewThrottle creates a [Throttle] storing its attempt logs under prefix.
func NewThrottle(redisClient redis.UniversalClient, prefix string) *Throttle {
	if prefix == "" {
		prefix = "thr"
	}
	return &Throttle{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *Throttle) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// Check records one attempt for (action, actor). It returns nil when the
// attempt fits in the budget, [ErrRateLimited] when it does not, and an
// error wrapping [ErrRedisUnavailable] on backend failure.
func (t *Throttle) Check(ctx context.Context, action, actor string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return fmt.Errorf("%w: limit=%d window=%s", ErrInvalidPolicy, limit, window)
	}
	if t == nil || t.redis == nil {
		return ErrRedisUnavailable
	}
	if actor == "" {
		actor = unknownActor
	}

	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := slidingWindowLua.Run(ctx, t.redis,
		[]string{t.key(action, actor)},
		strconv.FormatInt(t.now().UnixMilli(), 10),
		strconv.FormatInt(windowMs, 10),
		strconv.Itoa(limit),
		uuid.NewString(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrRateLimited
	}
	return nil
}

func (t *Throttle) key(action, actor string) string {
	return t.prefix + ":" + action + ":" + actor
}
