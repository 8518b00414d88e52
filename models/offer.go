package models

import "time"

// Offer is a professional's bid on a job. One per (job, professional).
type Offer struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	JobID          uint        `gorm:"not null;uniqueIndex:idx_offers_job_professional" json:"job_id"`
	Job            *Job        `gorm:"foreignKey:JobID" json:"job,omitempty"`
	ProfessionalID uint        `gorm:"not null;uniqueIndex:idx_offers_job_professional;index" json:"professional_id"`
	Professional   *User       `gorm:"foreignKey:ProfessionalID" json:"professional,omitempty"`
	Price          float64     `gorm:"not null;check:price > 0" json:"price"`
	Message        *string     `gorm:"type:text" json:"message"`
	Status         OfferStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	AcceptedAt     *time.Time  `json:"accepted_at"`
	RejectedAt     *time.Time  `json:"rejected_at"`
	WithdrawnAt    *time.Time  `json:"withdrawn_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableName specifies the table name for the Offer model
func (Offer) TableName() string {
	return "offers"
}
