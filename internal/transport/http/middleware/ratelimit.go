package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"hrflow/internal/requestctx"
	"hrflow/internal/transport/http/api"
	"hrflow/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*windowCounter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(c *windowCounter) {
		if fn != nil {
			c.keyFn = fn
		}
	}
}

func withClock(now func() time.Time) RateLimitOption {
	return func(c *windowCounter) { c.now = now }
}

// RateLimit allows limit requests per key in each fixed window. The key is
// the authenticated actor when Auth ran first, else the client IP.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	c := newWindowCounter(limit, window, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit gives each actor half the base budget on the
// routes that close approvals or move money. Other requests pass untouched.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	c := newWindowCounter(max(baseLimit/2, 1), window, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSensitiveMutation(r) && !c.admit(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.CompanyID + ":" + user.UserID
	}
	return shared.ClientIP(r)
}

type window struct {
	used    int
	resetAt time.Time
}

type windowCounter struct {
	limit  int
	length time.Duration
	keyFn  RateLimitKeyFunc
	now    func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

func newWindowCounter(limit int, length time.Duration, opts ...RateLimitOption) *windowCounter {
	c := &windowCounter{
		limit:   limit,
		length:  length,
		keyFn:   actorOrIPKey,
		now:     time.Now,
		windows: map[string]*window{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// take counts one request against key and reports what is left of its window.
func (c *windowCounter) take(key string) (remaining int, resetIn time.Duration, ok bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.After(c.nextSweep) {
		for k, win := range c.windows {
			if now.After(win.resetAt) {
				delete(c.windows, k)
			}
		}
		c.nextSweep = now.Add(c.length)
	}

	win, found := c.windows[key]
	if !found || now.After(win.resetAt) {
		win = &window{resetAt: now.Add(c.length)}
		c.windows[key] = win
	}
	win.used++
	return c.limit - win.used, win.resetAt.Sub(now), win.used <= c.limit
}

func (c *windowCounter) admit(w http.ResponseWriter, r *http.Request) bool {
	if c.limit <= 0 {
		return true
	}
	key := c.keyFn(r)
	if key == "" {
		key = shared.ClientIP(r)
	}
	remaining, resetIn, ok := c.take(key)

	resetSec := ceilSeconds(resetIn)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(c.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if ok {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	requestctx.Logger(r.Context()).Warn("rate limit exceeded",
		"key", key, "method", r.Method, "path", r.URL.Path, "limit", c.limit)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// sensitiveRoutes maps an API path prefix to the trailing segments that make
// a mutation on it sensitive. An empty suffix list matches the whole prefix.
var sensitiveRoutes = []struct {
	prefix   string
	suffixes []string
}{
	{"/timesheets/finalizations/", []string{"/approval", "/settle", "/send-to-payroll"}},
	{"/workflows/", []string{"/actions", "/cancel"}},
	{"/jobs/", nil},
}

func isSensitiveMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	for _, route := range sensitiveRoutes {
		if !strings.HasPrefix(path, route.prefix) {
			continue
		}
		if len(route.suffixes) == 0 {
			return true
		}
		for _, suffix := range route.suffixes {
			if strings.HasSuffix(path, suffix) {
				return true
			}
		}
		return false
	}
	return false
}
