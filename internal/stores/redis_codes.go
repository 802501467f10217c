package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Every key built by the scripts below starts with the same {prefix} hash
// tag, so all of them live in one cluster slot.
//
//	{p}:row:<id>      HASH code, email, selector, token, exp (unix ms)
//	{p}:code:<code>   SET of row ids
//	{p}:email:<email> SET of row ids
//	{p}:exp           ZSET row id scored by exp
const dropRowLua = `
local function dropRow(p, id)
  local row = p .. ':row:' .. id
  local f = redis.call('HMGET', row, 'code', 'email')
  if f[1] then redis.call('SREM', p .. ':code:' .. f[1], id) end
  if f[2] then redis.call('SREM', p .. ':email:' .. f[2], id) end
  redis.call('ZREM', p .. ':exp', id)
  return redis.call('DEL', row)
end
`

// ARGV: prefix, id, code, email, selector, token, exp (unix ms), ttl (ms)
var putCodeLua = redis.NewScript(`
local p = ARGV[1]
local row = p .. ':row:' .. ARGV[2]
redis.call('HSET', row, 'code', ARGV[3], 'email', ARGV[4], 'selector', ARGV[5], 'token', ARGV[6], 'exp', ARGV[7])
redis.call('PEXPIRE', row, ARGV[8])

local byCode = p .. ':code:' .. ARGV[3]
local byEmail = p .. ':email:' .. ARGV[4]
redis.call('SADD', byCode, ARGV[2])
redis.call('SADD', byEmail, ARGV[2])
redis.call('PEXPIRE', byCode, ARGV[8])
redis.call('PEXPIRE', byEmail, ARGV[8])
redis.call('ZADD', p .. ':exp', ARGV[7], ARGV[2])
return 1
`)

// ARGV: prefix, now (unix ms)
// Returns the number of expiry entries removed.
var sweepCodesLua = redis.NewScript(dropRowLua + `
local p = ARGV[1]
local ids = redis.call('ZRANGEBYSCORE', p .. ':exp', '-inf', '(' .. ARGV[2])
for _, id in ipairs(ids) do
  dropRow(p, id)
end
return #ids
`)

// ARGV: prefix, code, now (unix ms), email ("" matches any address)
// Returns {email, selector, token, exp} of the newest live row, or nil.
// Ids whose row hash is gone are pruned from the code index.
var findCodeLua = redis.NewScript(`
local p = ARGV[1]
local now = tonumber(ARGV[3])
local email = ARGV[4]
local byCode = p .. ':code:' .. ARGV[2]
local ids = redis.call('SMEMBERS', byCode)
local best = false
local bestExp = -1
for _, id in ipairs(ids) do
  local f = redis.call('HMGET', p .. ':row:' .. id, 'email', 'selector', 'token', 'exp')
  if not f[4] then
    redis.call('SREM', byCode, id)
  else
    local exp = tonumber(f[4])
    if exp >= now and exp > bestExp and (email == '' or f[1] == email) then
      best = {f[1], f[2], f[3], f[4]}
      bestExp = exp
    end
  end
end
return best
`)

// ARGV: prefix, email
var deleteByEmailLua = redis.NewScript(dropRowLua + `
local p = ARGV[1]
local byEmail = p .. ':email:' .. ARGV[2]
local ids = redis.call('SMEMBERS', byEmail)
local n = 0
for _, id in ipairs(ids) do
  n = n + dropRow(p, id)
end
redis.call('DEL', byEmail)
return n
`)

// ARGV: prefix, code, email, now (unix ms)
// Deletes every live row matching (code, email) and returns how many went.
var deleteByCodeAndEmailLua = redis.NewScript(dropRowLua + `
local p = ARGV[1]
local now = tonumber(ARGV[4])
local ids = redis.call('SMEMBERS', p .. ':code:' .. ARGV[2])
local n = 0
for _, id in ipairs(ids) do
  local f = redis.call('HMGET', p .. ':row:' .. id, 'email', 'exp')
  if f[1] and f[2] and f[1] == ARGV[3] and tonumber(f[2]) >= now then
    n = n + dropRow(p, id)
  end
end
return n
`)

// RedisCodeStore keeps verification codes in Redis. Every operation is one
// Lua script, which gives the atomic conditional delete required for
// exactly-once consumption.
type RedisCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisCodeStore(redisClient redis.UniversalClient, prefix string, opts Options) *RedisCodeStore {
	if prefix == "" {
		prefix = "vc"
	}
	return &RedisCodeStore{
		redis:  redisClient,
		prefix: "{" + prefix + "}",
		opts:   opts.normalize(),
	}
}

func (s *RedisCodeStore) Put(ctx context.Context, email, code, selector, token string) error {
	if s == nil || s.redis == nil {
		return ErrStoreUnavailable
	}
	exp := s.opts.Now().Add(s.opts.TTL)
	ttl := s.opts.TTL.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	err := putCodeLua.Run(ctx, s.redis, s.routeKeys(),
		s.prefix,
		uuid.NewString(),
		code,
		email,
		selector,
		token,
		strconv.FormatInt(exp.UnixMilli(), 10),
		strconv.FormatInt(ttl, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisCodeStore) SweepExpired(ctx context.Context) (int64, error) {
	if s == nil || s.redis == nil {
		return 0, ErrStoreUnavailable
	}
	n, err := sweepCodesLua.Run(ctx, s.redis, s.routeKeys(), s.prefix, s.nowMillis()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *RedisCodeStore) FindByCode(ctx context.Context, code string) (VerificationCode, error) {
	return s.find(ctx, code, "")
}

func (s *RedisCodeStore) FindByCodeAndEmail(ctx context.Context, code, email string) (VerificationCode, error) {
	if email == "" {
		return VerificationCode{}, ErrCodeNotFound
	}
	return s.find(ctx, code, email)
}

func (s *RedisCodeStore) find(ctx context.Context, code, email string) (VerificationCode, error) {
	if s == nil || s.redis == nil {
		return VerificationCode{}, ErrStoreUnavailable
	}
	res, err := findCodeLua.Run(ctx, s.redis, s.routeKeys(), s.prefix, code, s.nowMillis(), email).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return VerificationCode{}, ErrCodeNotFound
		}
		return VerificationCode{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 4 {
		return VerificationCode{}, fmt.Errorf("%w: malformed row", ErrStoreUnavailable)
	}
	expMs, err := strconv.ParseInt(res[3], 10, 64)
	if err != nil {
		return VerificationCode{}, fmt.Errorf("%w: malformed expiry: %v", ErrStoreUnavailable, err)
	}

	return VerificationCode{
		Code:      code,
		Email:     res[0],
		Selector:  res[1],
		Token:     res[2],
		ExpiresAt: time.UnixMilli(expMs),
	}, nil
}

func (s *RedisCodeStore) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	if s == nil || s.redis == nil {
		return 0, ErrStoreUnavailable
	}
	n, err := deleteByEmailLua.Run(ctx, s.redis, s.routeKeys(), s.prefix, email).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *RedisCodeStore) DeleteByCodeAndEmail(ctx context.Context, code, email string) (int64, error) {
	if s == nil || s.redis == nil {
		return 0, ErrStoreUnavailable
	}
	n, err := deleteByCodeAndEmailLua.Run(ctx, s.redis, s.routeKeys(), s.prefix, code, email, s.nowMillis()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *RedisCodeStore) nowMillis() string {
	return strconv.FormatInt(s.opts.Now().UnixMilli(), 10)
}

// routeKeys names one key in the prefix slot so cluster clients send the
// script to the node owning every key it touches.
func (s *RedisCodeStore) routeKeys() []string {
	return []string{s.prefix + ":exp"}
}
