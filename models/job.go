package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job is a unit of work posted by a customer
type Job struct {
	ID             uint                        `gorm:"primaryKey" json:"id"`
	Title          string                      `gorm:"not null" json:"title"`
	Description    string                      `gorm:"type:text;not null" json:"description"`
	Category       string                      `gorm:"not null;index" json:"category"`
	Location       string                      `gorm:"not null" json:"location"`
	Budget         float64                     `gorm:"not null;check:budget >= 0" json:"budget"`
	AgreedPrice    *float64                    `json:"agreed_price"` // set when an offer is accepted
	Status         JobStatus                   `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CustomerID     uint                        `gorm:"not null;index" json:"customer_id"`
	Customer       User                        `gorm:"foreignKey:CustomerID" json:"customer"`
	ProfessionalID *uint                       `gorm:"index" json:"professional_id"` // null until assignment
	Professional   *User                       `gorm:"foreignKey:ProfessionalID" json:"professional,omitempty"`
	BeforePhotos   datatypes.JSONSlice[string] `json:"before_photos"`
	AfterPhotos    datatypes.JSONSlice[string] `json:"after_photos"`
	Rating         *int                        `json:"rating"`
	Review         *string                     `gorm:"type:text" json:"review"`
	CancelReason   *string                     `gorm:"type:text" json:"cancel_reason"`
	CancelPenalty  float64                     `gorm:"not null;default:0" json:"cancel_penalty"`
	AcceptedAt     *time.Time                  `json:"accepted_at"`
	StartedAt      *time.Time                  `json:"started_at"`
	CompletedAt    *time.Time                  `gorm:"index" json:"completed_at"`
	CancelledAt    *time.Time                  `json:"cancelled_at"`
	RatedAt        *time.Time                  `json:"rated_at"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName specifies the table name for the Job model
func (Job) TableName() string {
	return "jobs"
}

// EarningAmount is what the professional is credited on completion
func (j *Job) EarningAmount() float64 {
	if j.AgreedPrice != nil {
		return *j.AgreedPrice
	}
	return j.Budget
}

// IsOwnedBy reports whether userID posted the job
func (j *Job) IsOwnedBy(userID uint) bool {
	return j.CustomerID == userID
}

// IsAssignedTo reports whether userID is the job's professional
func (j *Job) IsAssignedTo(userID uint) bool {
	return j.ProfessionalID != nil && *j.ProfessionalID == userID
}

// IsParticipant reports whether userID is the customer or the assigned professional
func (j *Job) IsParticipant(userID uint) bool {
	return j.IsOwnedBy(userID) || j.IsAssignedTo(userID)
}

// OtherParty returns the participant on the other side of userID, if any
func (j *Job) OtherParty(userID uint) *uint {
	if j.IsOwnedBy(userID) {
		return j.ProfessionalID
	}
	if j.IsAssignedTo(userID) {
		id := j.CustomerID
		return &id
	}
	return nil
}
