package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyFunc picks the bucket a request is counted against. An empty key falls
// back to the client IP.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit allows at most maxPerMin requests per key per minute using a
// Redis counter. Without Redis it is a no-op.
func RateLimit(cache *redis.Client, scope string, maxPerMin int, keyFn KeyFunc) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := strings.TrimSpace(keyFn(c))
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:" + scope + ":" + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next() // fail-open on cache errors
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many "+scope+" attempts, try again later")
		}
		return c.Next()
	}
}

// LoginKey buckets login attempts by the handle in the request body.
func LoginKey(c *fiber.Ctx) string {
	var req struct {
		Handle string `json:"handle"`
	}
	_ = c.BodyParser(&req)
	return strings.ToLower(req.Handle)
}

// CallerKey buckets requests by the authenticated user.
func CallerKey(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}
