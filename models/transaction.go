package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Transaction is a wallet ledger entry: an earning credited on job completion
// or a withdrawal awaiting admin approval
type Transaction struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Reference     string            `gorm:"uniqueIndex;not null" json:"reference"`
	UserID        uint              `gorm:"not null;index" json:"user_id"`
	JobID         *uint             `gorm:"index" json:"job_id,omitempty"`
	Type          TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount        float64           `gorm:"not null;check:amount > 0" json:"amount"`
	Status        TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	BankDetails   datatypes.JSONMap `json:"bank_details,omitempty"`
	Note          *string           `gorm:"type:text" json:"note,omitempty"`
	ProcessedByID *uint             `json:"processed_by_id,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName specifies the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate assigns an external reference
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.Reference == "" {
		t.Reference = uuid.NewString()
	}
	return nil
}
