package models

import "time"

// Complaint is a dispute filed by one party of a job, moderated by admins
type Complaint struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	JobID        uint            `gorm:"not null;index" json:"job_id"`
	FilerID      uint            `gorm:"not null;index" json:"filer_id"`
	Filer        *User           `gorm:"foreignKey:FilerID" json:"filer,omitempty"`
	AgainstID    *uint           `gorm:"index" json:"against_id"`
	Reason       string          `gorm:"not null" json:"reason"`
	Description  string          `gorm:"type:text" json:"description"`
	Status       ComplaintStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	Resolution   *string         `gorm:"type:text" json:"resolution"`
	ResolvedByID *uint           `json:"resolved_by_id"`
	ResolvedAt   *time.Time      `json:"resolved_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Complaint model
func (Complaint) TableName() string {
	return "complaints"
}
