package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment is the durable record of one logical transaction, keyed by
// (service_from, reference_id). Rows are never deleted.
type Payment struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ServiceFrom string    `gorm:"size:100;not null;uniqueIndex:idx_payments_service_reference"`
	ReferenceID string    `gorm:"size:100;not null;uniqueIndex:idx_payments_service_reference"`
	Amount      float64   `gorm:"type:numeric(10,2);not null"`
	Currency    string    `gorm:"size:3;not null"`
	Name        string    `gorm:"size:255;not null"`
	Email       string    `gorm:"size:255;not null"`
	Phone       string    `gorm:"size:50;not null"`
	ReturnURL   string    `gorm:"size:500;not null"`
	WebhookURL  string    `gorm:"size:500"`
	PgTxnID     *string   `gorm:"size:255"`
	BankTxnID   *string   `gorm:"size:255"`
	Metadata    *string   `gorm:"type:text"`

	Initiated   bool `gorm:"not null;default:false"`
	InitiatedAt *time.Time

	Succeed   bool `gorm:"not null;default:false"`
	SucceedAt *time.Time

	Verified   bool `gorm:"not null;default:false"`
	VerifiedAt *time.Time

	ServiceProvided   bool `gorm:"not null;default:false"`
	ServiceProvidedAt *time.Time

	WebhookSentAt       *time.Time
	WebhookAttempts     int     `gorm:"not null;default:0"`
	WebhookLastResponse *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
