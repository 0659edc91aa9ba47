package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"city-raid/internal/handler"
	"city-raid/internal/pkg/metrics"
	"city-raid/internal/service"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request an ID, reusing the caller's if it
// is a valid UUID, and adds it to the request logger.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		l := hlog.FromRequest(r)
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

// AccessLogMiddleware logs every completed request.
func AccessLogMiddleware() func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		ev := hlog.FromRequest(r).Debug()
		if status >= http.StatusInternalServerError {
			ev = hlog.FromRequest(r).Warn()
		}
		ev.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})
}

// RecoveryMiddleware turns a panic into a 500 problem response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				hlog.FromRequest(r).Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Recovered from panic in handler")
				handler.WriteProblem(w, service.ErrStorageFailure)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// IdentityMiddleware reads the caller's login from header, as set by the
// upstream auth proxy, and stores it in the request context.
func IdentityMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			login := strings.ToLower(strings.TrimSpace(r.Header.Get(header)))
			if login != "" {
				r = r.WithContext(handler.WithIdentity(r.Context(), login))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimitMiddleware caps request bodies at n bytes.
func BodyLimitMiddleware(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ipIdleTTL is how long an idle per-IP bucket is kept.
const ipIdleTTL = 3 * time.Minute

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter is a coarse token-bucket guard per client IP. It sits in front
// of the per-caller sliding window and protects anonymous endpoints too.
type IPLimiter struct {
	rate  rate.Limit
	burst int
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]*ipEntry
}

// NewIPLimiter creates a limiter allowing rps requests per second per IP
// with the given burst. A non-positive rps disables it.
func NewIPLimiter(rps float64, burst int, clock clockwork.Clock) *IPLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IPLimiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		clock:   clock,
		entries: make(map[string]*ipEntry),
	}
}

// Allow reports whether a request from ip may proceed.
func (l *IPLimiter) Allow(ip string) bool {
	if l.rate <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than ipIdleTTL and returns how many
// were dropped.
func (l *IPLimiter) Sweep() int {
	cutoff := l.clock.Now().Add(-ipIdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for ip, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, ip)
			dropped++
		}
	}
	return dropped
}

// Middleware rejects requests over the per-IP budget with a 429 problem.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			log.Debug().Str("ip", ip).Str("path", r.URL.Path).Msg("IP rate limit exceeded")
			metrics.RecordIPDenial()
			handler.WriteProblem(w, service.ErrRateLimited)
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
