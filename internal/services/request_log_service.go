package services

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/axellelanca/trafficstats/internal/errors"
	"github.com/axellelanca/trafficstats/internal/models"
	"github.com/axellelanca/trafficstats/internal/repository"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// RequestLogQuery holds the raw query parameters of a request log lookup.
type RequestLogQuery struct {
	UserID    string
	StartDate string
	EndDate   string
	URL       string
	Page      string
	PageSize  string
}

// RequestPage is one page of a user's request log.
type RequestPage struct {
	Count      int64                `json:"count"`
	TotalPages int                  `json:"total_pages"`
	Next       *string              `json:"next"`
	Previous   *string              `json:"previous"`
	Results    []models.TrafficStat `json:"results"`
}

// RequestLogService pages through the requests made by a user.
type RequestLogService struct {
	users   repository.UserRepository
	traffic repository.TrafficRepository
	loc     *time.Location
}

// NewRequestLogService creates a RequestLogService. Filter dates without an
// offset are read in loc.
func NewRequestLogService(users repository.UserRepository, traffic repository.TrafficRepository, loc *time.Location) *RequestLogService {
	if loc == nil {
		loc = time.UTC
	}
	return &RequestLogService{users: users, traffic: traffic, loc: loc}
}

// UserRequests returns the requested page of the user's request log, newest first.
// self is the absolute URL of the current page; next and previous links are built
// from it.
func (s *RequestLogService) UserRequests(ctx context.Context, q RequestLogQuery, self *url.URL) (*RequestPage, error) {
	id, err := strconv.ParseUint(q.UserID, 10, 64)
	if err != nil {
		return nil, apperrors.NewUserError(apperrors.ErrUserNotFound, "Данный пользователь не найден")
	}
	user, err := s.users.GetByID(ctx, uint(id))
	if repository.IsNotFound(err) {
		return nil, apperrors.NewUserError(apperrors.ErrUserNotFound, "Данный пользователь не найден")
	}
	if err != nil {
		return nil, err
	}

	filter := repository.RequestFilter{URL: strings.TrimSpace(q.URL)}
	if q.StartDate != "" {
		if filter.From, err = s.parseBound(q.StartDate, false); err != nil {
			return nil, apperrors.NewUserError(apperrors.ErrInvalidFilter, "Некорректный формат start_date")
		}
	}
	if q.EndDate != "" {
		if filter.To, err = s.parseBound(q.EndDate, true); err != nil {
			return nil, apperrors.NewUserError(apperrors.ErrInvalidFilter, "Некорректный формат end_date")
		}
	}

	size := pageSize(q.PageSize)
	page := 1
	if q.Page != "" {
		if page, err = strconv.Atoi(q.Page); err != nil || page < 1 {
			return nil, apperrors.NewUserError(apperrors.ErrInvalidPage, "Неверная страница.")
		}
	}

	results, total, err := s.traffic.ListUserRequests(ctx, user.ID, filter, size, (page-1)*size)
	if err != nil {
		return nil, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(size)))
	if page > 1 && page > totalPages {
		return nil, apperrors.NewUserError(apperrors.ErrInvalidPage, "Неверная страница.")
	}

	if results == nil {
		results = []models.TrafficStat{}
	}
	resp := &RequestPage{Count: total, TotalPages: totalPages, Results: results}
	if self != nil {
		if page < totalPages {
			resp.Next = pageLink(self, page+1)
		}
		if page > 1 {
			resp.Previous = pageLink(self, page-1)
		}
	}
	return resp, nil
}

// parseBound accepts an ISO date or datetime. A bare end date covers the whole day.
func (s *RequestLogService) parseBound(raw string, end bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseInLocation("2006-01-02", raw, s.loc); err == nil {
		if end {
			return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return d, nil
	}
	return parseISOTime(raw, s.loc)
}

func pageSize(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// pageLink returns self pointing at page; the first page drops the parameter.
func pageLink(self *url.URL, page int) *string {
	u := *self
	values := u.Query()
	if page == 1 {
		values.Del("page")
	} else {
		values.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = values.Encode()
	link := u.String()
	return &link
}
