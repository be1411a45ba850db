package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RateLimiter counts hits in clock-aligned windows. With a one minute window
// every hit between 12:00:00 and 12:00:59 lands on the same counter key.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow reports whether one more hit on key fits in limit for the current
// window. limit <= 0 means unlimited.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		window = time.Minute
	}
	now := r.now()
	start := now.Truncate(window)
	bucket := windowKey(key, start)

	n, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if n == 1 {
		// the counter outlives its window by one second
		if err := r.client.Expire(ctx, bucket, start.Add(window).Sub(now)+time.Second); err != nil {
			return false, fmt.Errorf("rate limit %s: expire: %w", key, err)
		}
	}
	return n <= int64(limit), nil
}

func windowKey(key string, start time.Time) string {
	return key + ":" + strconv.FormatInt(start.Unix(), 10)
}

// StkPushKey scopes push attempts to one canonical phone number.
func StkPushKey(phone string) string {
	return "rate_limit:stk:" + phone
}
