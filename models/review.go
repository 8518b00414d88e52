package models

import "time"

// Review is the customer's rating of a completed job. Immutable once created.
type Review struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	JobID          uint      `gorm:"not null;uniqueIndex" json:"job_id"`
	CustomerID     uint      `gorm:"not null;index" json:"customer_id"`
	Customer       *User     `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	ProfessionalID uint      `gorm:"not null;index" json:"professional_id"`
	Rating         int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment        *string   `gorm:"type:text" json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName specifies the table name for the Review model
func (Review) TableName() string {
	return "reviews"
}
