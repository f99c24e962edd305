package models

import (
	"strings"
	"time"
)

// User is a registered account of the tracked site.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	FirstName string    `gorm:"size:150" json:"first_name"`
	LastName  string    `gorm:"size:150" json:"last_name"`
	Email     string    `gorm:"size:254" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FullName joins the first and last name, trimming the gap when either is empty.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
