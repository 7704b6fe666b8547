package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/httputil"
	"github.com/clusterkeeper/ilm/infrastructure/logging"
)

// RateLimiter rate-limits ops-surface requests per client IP. The manual
// trigger endpoint runs a full engine cycle synchronously, so an
// unthrottled caller could keep a tenant cluster permanently busy.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	limit    int
	window   time.Duration
	logger   *logging.Logger
}

// NewRateLimiter creates a per-IP rate limiter.
func NewRateLimiter(requestsPerSecond, burst int, logger *logging.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		limit:    requestsPerSecond,
		window:   time.Second,
		logger:   logger,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Bound the key space; a sweep this coarse is fine for an internal
	// ops surface with a handful of callers.
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware handler.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := httputil.ClientIP(r)
		if key == "" {
			key = "unknown"
		}

		if !rl.getLimiter(key).Allow() {
			if rl.logger != nil {
				rl.logger.Warn(r.Context(), "rate limit exceeded", map[string]interface{}{
					"key":    key,
					"path":   r.URL.Path,
					"method": r.Method,
				})
			}

			serviceErr := errors.RateLimitExceeded(rl.limit, rl.window.String())
			if seconds := int(math.Ceil(rl.window.Seconds())); seconds > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
			}
			httputil.WriteErrorResponse(w, r, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
			return
		}

		next.ServeHTTP(w, r)
	})
}
