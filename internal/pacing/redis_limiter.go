package pacing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrDailyLimit is returned once the shared daily send budget is spent.
var ErrDailyLimit = errors.New("daily send limit reached")

// Checks both budgets before incrementing either, so a denied send never
// consumes quota.
const takeLuaScript = `
local secondKey = KEYS[1]
local dailyKey = KEYS[2]
local secondLimit = tonumber(ARGV[1])
local dailyLimit = tonumber(ARGV[2])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if secCurrent + 1 > secondLimit then
    return {0, 1}
end
if dailyLimit > 0 and dayCurrent + 1 > dailyLimit then
    return {0, 2}
end

if redis.call("INCR", secondKey) == 1 then
    redis.call("EXPIRE", secondKey, 2)
end
if redis.call("INCR", dailyKey) == 1 then
    redis.call("EXPIRE", dailyKey, 90000)
end
return {1, 0}
`

const (
	denySecond = 1
	denyDaily  = 2
)

// RedisLimiter is a send budget shared by every process pointed at the same
// Redis: at most perSecond sends per wall-clock second and, optionally, at
// most dailyLimit per UTC day.
type RedisLimiter struct {
	client     *redis.Client
	script     *redis.Script
	name       string
	perSecond  int
	dailyLimit int
	now        func() time.Time
}

// NewRedisLimiter creates a limiter. dailyLimit <= 0 means no daily cap.
func NewRedisLimiter(client *redis.Client, name string, perSecond, dailyLimit int) *RedisLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &RedisLimiter{
		client:     client,
		script:     redis.NewScript(takeLuaScript),
		name:       name,
		perSecond:  perSecond,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

// Wait blocks until a send slot is granted, ctx is done, or the daily
// budget is exhausted.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		allowed, wait, err := l.take(ctx)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (l *RedisLimiter) take(ctx context.Context) (bool, time.Duration, error) {
	now := l.now().UTC()
	secondKey := fmt.Sprintf("pacing:%s:sec:%d", l.name, now.Unix())
	dailyKey := fmt.Sprintf("pacing:%s:day:%s", l.name, now.Format("2006-01-02"))

	result, err := l.script.Run(ctx, l.client,
		[]string{secondKey, dailyKey},
		l.perSecond,
		l.dailyLimit,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("pacing check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	if result[1].(int64) == denyDaily {
		return false, 0, ErrDailyLimit
	}
	// Sleep to the start of the next second.
	wait := time.Second - time.Duration(now.Nanosecond())
	return false, wait, nil
}
