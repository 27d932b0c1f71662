package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"stocksense/internal/adapters/config"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// statusRecorder captures the response status for metrics while
// preserving http.Flusher for the SSE endpoints.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// rateLimitStore is the slice of the Redis client the limiter needs.
type rateLimitStore interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RateLimiter applies a fixed-window per-client limit backed by Redis,
// so the limit holds across instances. Redis failures fail open: an
// unreachable limiter must not take the analysis endpoints down with it.
type RateLimiter struct {
	store   rateLimitStore
	limit   int
	window  time.Duration
	enabled bool
	log     *logger.Logger
}

// NewRateLimiter creates a limiter from configuration.
func NewRateLimiter(store rateLimitStore, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		store:   store,
		limit:   cfg.RequestsPerWindow,
		window:  cfg.Window,
		enabled: cfg.Enabled && store != nil,
		log:     logger.Get().With("component", "rate_limiter"),
	}
}

// Middleware enforces the limit on the wrapped handler.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("ratelimit:%s", clientIP(r))

		count, err := rl.store.Increment(r.Context(), key)
		if err != nil {
			rl.log.Warnf("Rate limit check failed, allowing request: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := rl.store.Expire(r.Context(), key, rl.window); err != nil {
				rl.log.Warnf("Failed to set rate limit window: %v", err)
			}
		}

		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the caller's address, honoring the first entry of
// X-Forwarded-For when the service runs behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
