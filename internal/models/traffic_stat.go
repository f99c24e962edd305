package models

import (
	"time"
	"unicode/utf8"
)

// TrafficStat is one tracked HTTP request (or activity ping) stored in the database.
// Rows are append-only: the application never updates them.
type TrafficStat struct {
	// ID is the primary key with auto-increment functionality
	ID uint `gorm:"primaryKey" json:"id"`

	// IPAddress is the client address as seen by the server (required)
	IPAddress string `gorm:"size:45;not null" json:"ip_address"`

	// UserID references the authenticated account, nulled when the account is deleted
	UserID *uint `gorm:"index" json:"user"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`

	UserAgent *string `gorm:"size:255" json:"user_agent"`

	// CreatedAt defaults to the insert time; indexed because every report filters on it
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	URL       *string `gorm:"size:255" json:"url"`
	Event     *string `gorm:"size:255;index" json:"event"`
	SessionID *string `gorm:"size:255;index" json:"session_id"`
}

// TrafficEvent is the raw request data handed from the tracking middleware to a recorder.
// It is converted into a TrafficStat right before persistence.
type TrafficEvent struct {
	IPAddress string
	UserID    *uint
	UserAgent string
	Path      string
	Event     string
	SessionID string
	Timestamp time.Time
}

// ToStat converts the event into its database row.
func (e TrafficEvent) ToStat() *TrafficStat {
	return &TrafficStat{
		IPAddress: e.IPAddress,
		UserID:    e.UserID,
		UserAgent: optional(Truncate(e.UserAgent, MaxTextLength)),
		CreatedAt: e.Timestamp.UTC(),
		URL:       optional(Truncate(e.Path, MaxTextLength)),
		Event:     optional(Truncate(e.Event, MaxTextLength)),
		SessionID: optional(Truncate(e.SessionID, MaxTextLength)),
	}
}

// TrafficPoint is the slim projection of a TrafficStat used by the report aggregations.
type TrafficPoint struct {
	CreatedAt time.Time
	UserID    *uint
	IPAddress string
	SessionID *string
}

// SessionActivity is the last time a session produced a TrafficStat row.
type SessionActivity struct {
	SessionID  string
	LastActive time.Time
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MaxTextLength is the size of the free-text columns of TrafficStat and Visitor.
const MaxTextLength = 255

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
