package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/axellelanca/trafficstats/internal/config"
	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Config     *config.Config
	Location   *time.Location
	Users      repository.UserRepository
	Tracking   *services.TrackingService
	Recorder   services.Recorder
	Reports    *services.ReportService
	Activity   *services.ActivityService
	Presence   *services.UserActivityService
	RequestLog *services.RequestLogService
	Online     OnlineCounter // optional
}

// SetupRoutes installs the global middleware and every route on router.
// Middleware order matters: the user must be resolved before the request is tracked.
func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	cfg := deps.Config

	// Client IPs feed the guest counts and the ping limiter: forwarded headers
	// are only honoured from the configured proxies.
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	router.Use(
		RequestLogger(),
		gin.Recovery(),
		AuthMiddleware([]byte(cfg.Auth.JWTSecret), deps.Users),
		TrackingMiddleware(deps.Tracking, deps.Recorder, TrackingOptions{
			CookieName:      cfg.Tracking.CookieName,
			CookieSecure:    cfg.Tracking.CookieSecure,
			ExcludePrefixes: cfg.Tracking.ExcludePrefixes,
		}),
	)

	// Health Check Route - used for monitoring service availability
	router.GET("/health", HealthCheckHandler(deps.Online))

	traffic := router.Group("/api/traffic")
	{
		traffic.GET("/daily/", DailyStatsHandler(deps.Reports))
		traffic.GET("/weekly/", WeeklyStatsHandler(deps.Reports))
		traffic.GET("/monthly/", MonthlyStatsHandler(deps.Reports))
		traffic.GET("/yearly/", YearlyStatsHandler(deps.Reports))
		traffic.GET("/active-users/", ActiveUsersHandler(deps.Presence))
		traffic.GET("/users/:user_id/requests/", UserRequestsHandler(deps.RequestLog, cfg.Server.BaseURL))

		limiter := NewIPRateLimiter(cfg.Activity.RatePerMinute, cfg.Activity.Burst)
		traffic.POST("/track-activity/", limiter.Middleware(), TrackActivityHandler(deps.Activity, deps.Location))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return nil
}
