package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chathub-backend/internal/keyValue"

	"go.uber.org/zap"
)

// FixedWindowLimiter limits requests per key in a fixed time window.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	store  keyValue.Store
	sugar  *zap.SugaredLogger
}

type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Duration
}

func NewFixedWindowLimiter(store keyValue.Store, sugar *zap.SugaredLogger, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if store == nil {
		return nil, errors.New("rate limiter requires a key value store")
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: "ratelimit",
		store:  store,
		sugar:  sugar,
	}, nil
}

// Allow counts a hit for key. On store failures it fails closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	count, reset, err := l.store.Incr(ctx, fmt.Sprintf("%s:%s", l.prefix, key), l.window)
	if err != nil {
		l.sugar.Errorf("Rate limiter store failed for key [%s]: %v", key, err)
		return Decision{Allowed: false, Reset: l.window}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: count <= int64(l.limit), Remaining: remaining, Reset: reset}
}

// Middleware limits requests per client IP. RealIP should run before it.
func (l *FixedWindowLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := l.Allow(r.Context(), clientIP(r))

		resetSeconds := int(math.Ceil(decision.Reset.Seconds()))
		w.Header().Set("RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("RateLimit-Reset", strconv.Itoa(resetSeconds))

		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(resetSeconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Too many requests, please try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
