package models

import "time"

// Visitor is the session-level aggregate of tracked requests: one row per session key.
type Visitor struct {
	ID         uint   `gorm:"primaryKey"`
	SessionKey string `gorm:"size:64;uniqueIndex;not null"`

	UserID *uint `gorm:"index"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"`

	IPAddress string `gorm:"size:45"`
	UserAgent string `gorm:"size:255"`

	StartTime    time.Time `gorm:"index;not null"`
	LastActivity time.Time `gorm:"index;not null"`

	// EndTime is set once the session is closed by the presence monitor
	EndTime *time.Time
}

// TimeOnSite is the time between the first and the last activity of the session.
func (v *Visitor) TimeOnSite() time.Duration {
	d := v.LastActivity.Sub(v.StartTime)
	if d < 0 {
		return 0
	}
	return d
}

// SessionEnded reports whether the session has been closed.
func (v *Visitor) SessionEnded() bool {
	return v.EndTime != nil
}

// SessionExpired reports whether the session has been idle for longer than timeout.
func (v *Visitor) SessionExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(v.LastActivity) > timeout
}

// VisitorStats summarizes the sessions that started within a period.
type VisitorStats struct {
	Total          int           `json:"total"`
	Registered     int           `json:"registered"`
	Guests         int           `json:"guests"`
	AvgTimeOnSite  time.Duration `json:"avg_time_on_site"`
	RegisteredAvg  time.Duration `json:"registered_avg_time_on_site"`
	GuestAvg       time.Duration `json:"guest_avg_time_on_site"`
	UniqueIPs      int           `json:"unique_ips"`
	ReturningUsers int           `json:"returning_users"`
}

// UserVisitStats aggregates the sessions of one user within a period.
type UserVisitStats struct {
	UserID     uint
	VisitCount int
	TimeOnSite time.Duration // average per visit
}
