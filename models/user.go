package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User represents a principal: a customer, a professional ("usta") or an admin
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	AuthSubject   string     `gorm:"uniqueIndex;not null" json:"-"` // token subject (Auth0 'sub' or local id)
	Name          string     `gorm:"not null" json:"name"`
	Email         string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string     `json:"-"` // empty for Auth0-managed users
	Phone         string     `json:"phone,omitempty"`
	Bio           string     `gorm:"type:text" json:"bio,omitempty"`
	Role          Role       `gorm:"type:varchar(20);not null;default:'customer'" json:"role"`
	Status        UserStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Rating        float64    `gorm:"not null;default:0" json:"rating"`
	ReviewCount   int        `gorm:"not null;default:0" json:"review_count"`
	EscrowBalance float64    `gorm:"not null;default:0" json:"escrow_balance"`
	TotalEarnings float64    `gorm:"not null;default:0" json:"total_earnings"`
	PendingJobs   int        `gorm:"not null;default:0" json:"pending_jobs"`
	CompletedJobs int        `gorm:"not null;default:0" json:"completed_jobs"`
	CancelledJobs int        `gorm:"not null;default:0" json:"cancelled_jobs"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BeforeSave keeps emails unique regardless of case
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	return nil
}

// IsBanned reports whether the principal must be refused authentication
func (u *User) IsBanned() bool {
	return u.Status == UserBanned
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
