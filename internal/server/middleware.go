package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/rewind/internal/auth"
	"github.com/desertthunder/rewind/internal/shared"
	"golang.org/x/time/rate"
)

type ctxKey int

const sessionKey ctxKey = iota

// session is what resolution leaves in the request context for handlers.
type session struct {
	record  auth.TokenRecord
	outcome auth.Outcome
}

// sessionFrom returns the resolved token record for a request that passed
// through [Server.requireSession].
func sessionFrom(ctx context.Context) (auth.TokenRecord, bool) {
	s, ok := ctx.Value(sessionKey).(session)
	return s.record, ok
}

// requireSession resolves the bearer session token and refreshes the Spotify
// token when needed before handing the request on. A failed refresh does not
// reject the request; the stale token is forwarded and Spotify's 401 comes
// back through the proxy instead.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ParseBearer(r.Header.Get("Authorization"))
		if err != nil {
			respondError(w, err)
			return
		}

		rec, outcome, err := s.resolver.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, shared.ErrUnknownSession) {
				respondError(w, err)
				return
			}
			s.logger.Error("session resolution failed", "error", err)
			respondError(w, err)
			return
		}

		if outcome == auth.RefreshFailed {
			s.logger.Warn("proceeding with stale token", "path", r.URL.Path)
		}

		ctx := context.WithValue(r.Context(), sessionKey, session{record: rec, outcome: outcome})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusWriter records the status code for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each request with an id, echoes it in the X-Request-ID
// header, and logs the outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := shared.GenerateID()
		w.Header().Set("X-Request-ID", id)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"id", id, "method", r.Method, "path", r.URL.Path,
			"status", sw.status, "duration", time.Since(start))
	})
}

// recoverer converts handler panics into 500s instead of dropped connections.
func recoverer(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
					writeDetail(w, http.StatusInternalServerError, "Internal server error.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter keeps a [rate.Limiter] per client address for the auth endpoints.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newRateLimiter(r float64, burst int) *rateLimiter {
	if r <= 0 {
		r = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(r),
		burst:    burst,
	}
}

func (rl *rateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Bound the map; auth endpoints see few distinct clients in practice.
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

func rateLimit(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !rl.get(host).Allow() {
				writeDetail(w, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
