package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/edumesh/edumesh-api/utils/cache"
	"github.com/edumesh/edumesh-api/utils/response"
	"github.com/gofiber/fiber/v2"
)

// attemptWindow is how long failed attempts count against an IP.
const attemptWindow = 15 * time.Minute

// lockoutTiers maps the attempt count that triggers a lockout to its
// duration. Checked highest first.
var lockoutTiers = []struct {
	attempts int64
	duration time.Duration
}{
	{25, 24 * time.Hour},
	{10, 1 * time.Hour},
	{5, 2 * time.Minute},
}

// BruteForceProtection throttles repeated failed logins per client IP,
// backed by Redis counters.
type BruteForceProtection struct {
	redisCache *cache.RedisCache
}

func NewBruteForceProtection(redisCache *cache.RedisCache) *BruteForceProtection {
	return &BruteForceProtection{redisCache: redisCache}
}

func attemptKey(ip string) string { return "brute_force:attempts:" + ip }
func lockKey(ip string) string    { return "brute_force:lock:" + ip }

// CheckAndRecordAttempt rejects requests from locked-out IPs with a
// Retry-After header. Redis failures let the request through rather
// than locking out legitimate users.
func (b *BruteForceProtection) CheckAndRecordAttempt() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := lockKey(c.IP())

		locked, err := b.redisCache.Exists(c.Context(), key)
		if err != nil {
			return c.Next()
		}
		if !locked {
			return c.Next()
		}

		ttl, _ := b.redisCache.TTL(c.Context(), key)
		retryAfter := int(ttl.Seconds())
		if retryAfter < 0 {
			retryAfter = 60
		}
		c.Set("Retry-After", strconv.Itoa(retryAfter))
		return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
	}
}

// RecordFailedAttempt bumps the per-IP counter and applies the lockout
// tier the new count falls into, if any.
func (b *BruteForceProtection) RecordFailedAttempt(c *fiber.Ctx, ip, email string) error {
	ctx := c.Context()

	attempts, err := b.redisCache.Increment(ctx, attemptKey(ip))
	if err != nil {
		return nil
	}
	if attempts == 1 {
		b.redisCache.Expire(ctx, attemptKey(ip), attemptWindow)
	}

	for _, tier := range lockoutTiers {
		if attempts >= tier.attempts {
			return b.redisCache.Set(ctx, lockKey(ip), "locked", tier.duration)
		}
	}
	return nil
}

// RecordSuccessfulAttempt resets the counter and any lock for the IP.
func (b *BruteForceProtection) RecordSuccessfulAttempt(c *fiber.Ctx, ip string) error {
	ctx := c.Context()
	b.redisCache.Delete(ctx, attemptKey(ip))
	b.redisCache.Delete(ctx, lockKey(ip))
	return nil
}
