package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ravigill3969/examly/backend/utils"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const rateLimitWindow = 1 * time.Minute

// RateLimiter is a fixed-window limiter kept in Redis, keyed by the
// authenticated user when there is one and by client IP otherwise.
type RateLimiter struct {
	Client redis.UniversalClient
	Limit  int
	Window time.Duration
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.Client == nil || l.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := rateLimitKey(r)
		allowed, err := l.allow(r.Context(), key)
		if err != nil {
			// Redis trouble should not take the API down with it.
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			utils.RespondError(w, http.StatusTooManyRequests, "Too many requests, wait for one minute!")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(ctx context.Context, key string) (bool, error) {
	window := l.Window
	if window <= 0 {
		window = rateLimitWindow
	}

	count, err := l.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := l.Client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}

	return count <= int64(l.Limit), nil
}

func rateLimitKey(r *http.Request) string {
	if u, ok := UserFromContext(r.Context()); ok {
		return fmt.Sprintf("rate_limit:user:%s", u.ID)
	}
	return fmt.Sprintf("rate_limit:site:%s", getIP(r))
}

func getIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
