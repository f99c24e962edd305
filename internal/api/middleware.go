package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/axellelanca/trafficstats/internal/auth"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Keys of the values shared between middleware and handlers through gin.Context.
const (
	UserIDContextKey  = "traffic.user_id"
	SessionContextKey = "traffic.session_key"
	EventContextKey   = "traffic.event"
)

// AuthCookieName is the cookie that may carry the bearer token.
const AuthCookieName = "auth_token"

// sessionCookieMaxAge keeps the session cookie for two weeks.
const sessionCookieMaxAge = 14 * 24 * 60 * 60

// AuthMiddleware resolves the authenticated user from a bearer token in the
// Authorization header or the auth_token cookie. It never rejects a request:
// a missing, invalid or expired token, or one for a deleted user, means anonymous.
func AuthMiddleware(secret []byte, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}

		token := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		} else if cookie, err := c.Cookie(AuthCookieName); err == nil {
			token = cookie
		}

		if token != "" {
			if id, ok := authenticate(c.Request.Context(), token, secret, users); ok {
				c.Set(UserIDContextKey, id)
			}
		}
		c.Next()
	}
}

func authenticate(ctx context.Context, token string, secret []byte, users repository.UserRepository) (uint, bool) {
	claims, err := auth.ParseToken(token, secret)
	if err != nil {
		slog.Debug("ignoring invalid token", slog.Any("error", err))
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, false
	}
	if users != nil {
		if _, err := users.GetByID(ctx, id); err != nil {
			if !repository.IsNotFound(err) {
				slog.Error("failed to load token user", slog.Uint64("user_id", uint64(id)), slog.Any("error", err))
			}
			return 0, false
		}
	}
	return id, true
}

// CurrentUserID returns the authenticated user of the request, if any.
func CurrentUserID(c *gin.Context) *uint {
	v, ok := c.Get(UserIDContextKey)
	if !ok {
		return nil
	}
	id, ok := v.(uint)
	if !ok {
		return nil
	}
	return &id
}

// TrackingOptions configures TrackingMiddleware.
type TrackingOptions struct {
	CookieName      string
	CookieSecure    bool
	ExcludePrefixes []string
}

// TrackingMiddleware records every request outside the excluded prefixes as
// exactly one traffic row, written after the handler has run. It also keeps the
// visitor session and its cookie up to date.
func TrackingMiddleware(tracking *services.TrackingService, recorder services.Recorder, opts TrackingOptions) gin.HandlerFunc {
	if opts.CookieName == "" {
		opts.CookieName = "sessionid"
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range opts.ExcludePrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		ctx := c.Request.Context()
		userID := CurrentUserID(c)
		cookie, _ := c.Cookie(opts.CookieName)

		key, rotated, err := tracking.EnsureSession(ctx, services.SessionRequest{
			Key:       cookie,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			UserID:    userID,
		})
		switch {
		case err != nil:
			// the request is still recorded, without a session
			slog.Error("failed to update visitor session", slog.String("path", path), slog.Any("error", err))
		case rotated:
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(opts.CookieName, key, sessionCookieMaxAge, "/", "", opts.CookieSecure, true)
		}
		c.Set(SessionContextKey, key)

		c.Next()

		event := models.TrafficEvent{
			IPAddress: c.ClientIP(),
			UserID:    userID,
			UserAgent: c.Request.UserAgent(),
			Path:      path,
			Event:     c.GetString(EventContextKey),
			SessionID: key,
			Timestamp: time.Now(),
		}
		if err := recorder.Record(ctx, event); err != nil {
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			slog.Error("failed to record request", slog.String("path", path), slog.Any("error", err))
		}
	}
}

// RequestLogger logs every request with its status and latency.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()))
	}
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu                sync.Mutex
	limiters          map[string]*limiterInfo
	requestsPerMinute int
	burst             int
	idleTTL           time.Duration
	now               func() time.Time
}

type limiterInfo struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

// NewIPRateLimiter allows requestsPerMinute per IP with the given burst. A
// non-positive rate disables limiting.
func NewIPRateLimiter(requestsPerMinute, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		limiters:          make(map[string]*limiterInfo),
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		idleTTL:           10 * time.Minute,
		now:               time.Now,
	}
}

// Allow reports whether ip may make another request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.requestsPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	info, ok := l.limiters[ip]
	if !ok {
		l.evictIdle(now)
		info = &limiterInfo{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.requestsPerMinute)), l.burst),
		}
		l.limiters[ip] = info
	}
	info.lastAccessed = now
	return info.limiter.AllowN(now, 1)
}

// evictIdle drops the buckets of clients not seen for idleTTL; called with mu held.
func (l *IPRateLimiter) evictIdle(now time.Time) {
	for ip, info := range l.limiters {
		if now.Sub(info.lastAccessed) > l.idleTTL {
			delete(l.limiters, ip)
		}
	}
}

// Middleware rejects clients over their rate with 429.
func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Слишком много запросов"})
			return
		}
		c.Next()
	}
}
