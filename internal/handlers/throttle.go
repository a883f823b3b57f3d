package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/loomline/api/internal/platform/httpx"
)

// fixedWindowLimiter is a small in-memory per-key rate limiter. It guards the
// admin login endpoint against credential stuffing; real traffic shaping
// belongs in the edge proxy.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	slots map[string]limiterSlot
}

type limiterSlot struct {
	count int
	reset time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) *fixedWindowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		slots:  make(map[string]limiterSlot),
	}
}

// allow reports whether another attempt for key fits in the current window.
// A nil limiter allows everything.
func (l *fixedWindowLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[key]
	if !ok || now.After(slot.reset) {
		l.slots[key] = limiterSlot{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true
	}
	if slot.count >= l.limit {
		return false
	}
	slot.count++
	l.slots[key] = slot
	return true
}

func (l *fixedWindowLimiter) pruneLocked(now time.Time) {
	for key, slot := range l.slots {
		if now.After(slot.reset) {
			delete(l.slots, key)
		}
	}
}

// ThrottleMiddleware limits requests per client IP to limit per window.
// A non-positive limit disables throttling.
func ThrottleMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newFixedWindowLimiter(limit, window, nil)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
