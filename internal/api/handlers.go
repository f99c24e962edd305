package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/services"
	"github.com/gin-gonic/gin"
)

// OnlineCounter reports how many users the session monitor saw online.
type OnlineCounter interface {
	OnlineCount() int
}

// HealthCheckHandler handles the /health route to verify service status.
// online may be nil when no session monitor runs.
func HealthCheckHandler(online OnlineCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if online != nil {
			body["online_users"] = online.OnlineCount()
		}
		c.JSON(http.StatusOK, body)
	}
}

// respondError maps service errors to HTTP statuses. Errors carrying a
// client-facing message are returned as is; anything else is logged and hidden.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNoData), errors.Is(err, apperrors.ErrInvalidPage):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidPeriod),
		errors.Is(err, apperrors.ErrInvalidFilter),
		errors.Is(err, apperrors.ErrInvalidActivityTime),
		errors.Is(err, apperrors.ErrUserNotFound):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": apperrors.Message(err, err.Error())})
}

// reportHandler serves one of the period reports; param names the query parameter
// holding the period.
func reportHandler[T any](param string, build func(context.Context, string) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := build(c.Request.Context(), strings.TrimSpace(c.Query(param)))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// DailyStatsHandler returns the hourly traffic of ?date=YYYY-MM-DD (default today).
func DailyStatsHandler(reports *services.ReportService) gin.HandlerFunc {
	return reportHandler("date", reports.Daily)
}

// WeeklyStatsHandler returns the daily traffic of ?week=YYYY-WW (default this week).
func WeeklyStatsHandler(reports *services.ReportService) gin.HandlerFunc {
	return reportHandler("week", reports.Weekly)
}

// MonthlyStatsHandler returns the daily traffic of ?month=YYYY-MM (default this month).
func MonthlyStatsHandler(reports *services.ReportService) gin.HandlerFunc {
	return reportHandler("month", reports.Monthly)
}

// YearlyStatsHandler returns the monthly traffic of ?year=YYYY (default this year).
func YearlyStatsHandler(reports *services.ReportService) gin.HandlerFunc {
	return reportHandler("year", reports.Yearly)
}

// ActiveUsersHandler lists the registered users with their presence and visit statistics.
func ActiveUsersHandler(presence *services.UserActivityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := presence.ActiveAndRegisteredUsers(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

// UserRequestsHandler returns one page of the requests made by :user_id.
// Pagination links are absolute, rooted at baseURL (or the request host when empty).
func UserRequestsHandler(requestLog *services.RequestLogService, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := services.RequestLogQuery{
			UserID:    c.Param("user_id"),
			StartDate: c.Query("start_date"),
			EndDate:   c.Query("end_date"),
			URL:       c.Query("url"),
			Page:      c.Query("page"),
			PageSize:  c.Query("page_size"),
		}

		page, err := requestLog.UserRequests(c.Request.Context(), query, selfURL(c, baseURL))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func selfURL(c *gin.Context, baseURL string) *url.URL {
	root := strings.TrimRight(baseURL, "/")
	if root == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		root = scheme + "://" + c.Request.Host
	}
	u, err := url.Parse(root + c.Request.URL.RequestURI())
	if err != nil {
		return nil
	}
	return u
}

// TrackActivityRequest is the body of an activity ping.
type TrackActivityRequest struct {
	LastActivityTime *string `json:"last_activity_time"`
}

// TrackActivityHandler records a client-side activity ping: the tracked row of
// this request is tagged as activity and the session's last activity advances.
func TrackActivityHandler(activity *services.ActivityService, loc *time.Location) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TrackActivityRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(c, apperrors.NewUserError(apperrors.ErrInvalidActivityTime, "Некорректный формат last_activity_time"))
			return
		}

		raw := ""
		if req.LastActivityTime != nil {
			raw = *req.LastActivityTime
		}
		at, err := services.ParseActivityTime(raw, loc)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(EventContextKey, services.EventActivity)
		if err := activity.Touch(c.Request.Context(), c.GetString(SessionContextKey), at); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
