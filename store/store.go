package store

import (
	"errors"
	"time"

	"github.com/anjiri1684/payment_gateway/models"
	"github.com/google/uuid"
)

var ErrPaymentNotFound = errors.New("payment record not found")

// Store is the durable record of payment lifecycle state plus the append-only
// audit trail. WithLock runs fn inside a transaction holding an exclusive row
// lock on the target payment; fn must never perform network I/O.
type Store interface {
	FindOrCreate(payment *models.Payment) (*models.Payment, bool, error)
	Find(serviceFrom, referenceID string) (*models.Payment, error)
	Save(payment *models.Payment) error
	WithLock(serviceFrom, referenceID string, fn func(tx Store, p *models.Payment) error) error
	StaleInitiated(olderThan time.Duration) ([]models.Payment, error)

	AppendLog(entry *models.PaymentLog) error
	UpdateLogResponse(id uuid.UUID, response string, pgTxnID *string) error
	UpdateLogAPIResponse(id uuid.UUID, body string) error
}
