package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"respondeo-service/internal/metrics"
)

// Identity headers set by the authenticating proxy in front of the service.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	roleAdmin = "admin"
)

type principalKey struct{}

// Principal is the caller as resolved by the upstream authenticator.
type Principal struct {
	UserID string
	Admin  bool
}

func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := Principal{
			UserID: r.Header.Get(HeaderUserID),
			Admin:  r.Header.Get(HeaderUserRole) == roleAdmin,
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// PrincipalFrom returns the caller attached by the identity middleware.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

func requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()).UserID == "" {
			writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "missing user identity", r))
			return
		}
		next(w, r)
	}
}

func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return requireUser(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFrom(r.Context()).Admin {
			writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "admin role required", r))
			return
		}
		next(w, r)
	})
}

// observe records request durations labelled by route pattern.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// SubmitLimiter throttles attempt submissions per user with a token bucket.
// Buckets idle for longer than a full refill are dropped, since a fresh bucket
// behaves the same.
type SubmitLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewSubmitLimiter allows perMinute submissions per user, all of which may
// arrive in a burst. A non-positive value disables limiting.
func NewSubmitLimiter(perMinute int) *SubmitLimiter {
	if perMinute <= 0 {
		return &SubmitLimiter{}
	}
	return &SubmitLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		idle:     time.Minute,
		now:      time.Now,
	}
}

func (l *SubmitLimiter) Allow(userID string) bool {
	if l.limiters == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	l.sweep(now)
	u, ok := l.limiters[userID]
	if !ok {
		u = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = u
	}
	u.lastSeen = now
	l.mu.Unlock()
	return u.lim.AllowN(now, 1)
}

// sweep runs at most once per idle period. Callers hold l.mu.
func (l *SubmitLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for id, u := range l.limiters {
		if now.Sub(u.lastSeen) >= l.idle {
			delete(l.limiters, id)
		}
	}
}

// Len reports how many users currently hold a bucket.
func (l *SubmitLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Limit wraps a handler that already requires a user, so every bucket belongs
// to an identified caller.
func (l *SubmitLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(PrincipalFrom(r.Context()).UserID) {
			writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", "too many submissions, try again later", r))
			return
		}
		next(w, r)
	}
}
