package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fjod/aquakit/internal/api"
	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ctxKey int

const ownerKey ctxKey = iota

// TokenValidator resolves a bearer token to an account id.
type TokenValidator interface {
	Validate(token string) (string, error)
}

func ownerFromContext(ctx context.Context) domain.Owner {
	owner, _ := ctx.Value(ownerKey).(domain.Owner)
	return owner
}

// OwnerMiddleware attributes each request to a cart owner. A bearer token
// selects the account; without one the X-Cart-Session header selects an
// anonymous cart, and a fresh session id is minted and echoed back when the
// header is missing too.
func OwnerMiddleware(tokens TokenValidator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var owner domain.Owner

			if auth := r.Header.Get("Authorization"); auth != "" {
				token, ok := strings.CutPrefix(auth, "Bearer ")
				if !ok {
					respondError(w, http.StatusUnauthorized, api.CodeInvalidToken, "expected a bearer token")
					return
				}
				accountID, err := tokens.Validate(strings.TrimSpace(token))
				if err != nil {
					logger.FromContext(r.Context(), log).Debug("rejected bearer token", zap.Error(err))
					respondError(w, http.StatusUnauthorized, api.CodeInvalidToken, "invalid or expired token")
					return
				}
				owner = domain.AccountOwner(accountID)
			} else if session := r.Header.Get(api.HeaderCartSession); session != "" {
				if _, err := uuid.Parse(session); err != nil {
					respondError(w, http.StatusBadRequest, api.CodeInvalidSession, "cart session id must be a UUID")
					return
				}
				owner = domain.AnonymousOwner(session)
			} else {
				owner = domain.AnonymousOwner(uuid.NewString())
				w.Header().Set(api.HeaderCartSession, owner.ID)
			}

			ctx := context.WithValue(r.Context(), ownerKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAccount rejects anonymous owners.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ownerFromContext(r.Context()).IsAnonymous() {
			respondError(w, http.StatusUnauthorized, api.CodeAuthenticationRequired, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), log).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(rps),
		burst:     burst,
		idle:      3 * time.Minute,
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > rl.idle {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > rl.idle {
				delete(rl.visitors, key)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.Trim(r.RemoteAddr, "[]")
		}

		if !rl.limiterFor(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, api.CodeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
