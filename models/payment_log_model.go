package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentLog is the append-only audit trail. Entries are never deleted; the only
// allowed mutation is filling in the response fields of a row created before the
// response was available.
type PaymentLog struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	State           string    `gorm:"size:50;not null;index"`
	ServiceFrom     string    `gorm:"size:100;index"`
	ReferenceID     string    `gorm:"size:100;index"`
	PgTxnID         *string   `gorm:"size:255"`
	BankTxnID       *string   `gorm:"size:255"`
	RequestPayload  *string   `gorm:"type:text"`
	APIResponse     *string   `gorm:"type:text"`
	ResponsePayload *string   `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
