package store

import (
	"errors"
	"time"

	"github.com/anjiri1684/payment_gateway/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Find(serviceFrom, referenceID string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.Where("service_from = ? AND reference_id = ?", serviceFrom, referenceID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindOrCreate returns the existing row for (service_from, reference_id) or
// inserts payment. A concurrent insert losing the unique-index race falls back
// to fetching the winner, so callers always get exactly one row.
func (s *GormStore) FindOrCreate(payment *models.Payment) (*models.Payment, bool, error) {
	existing, err := s.Find(payment.ServiceFrom, payment.ReferenceID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrPaymentNotFound) {
		return nil, false, err
	}

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if createErr := s.db.Create(payment).Error; createErr != nil {
		if existing, err = s.Find(payment.ServiceFrom, payment.ReferenceID); err == nil {
			return existing, false, nil
		}
		return nil, false, createErr
	}
	return payment, true, nil
}

func (s *GormStore) Save(payment *models.Payment) error {
	return s.db.Save(payment).Error
}

// WithLock opens a transaction, takes a blocking FOR UPDATE lock on the row
// and hands a transactional Store to fn. The lock is released when fn returns.
func (s *GormStore) WithLock(serviceFrom, referenceID string, fn func(tx Store, p *models.Payment) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("service_from = ? AND reference_id = ?", serviceFrom, referenceID).
			First(&p).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		return fn(NewGormStore(tx), &p)
	})
}

func (s *GormStore) StaleInitiated(olderThan time.Duration) ([]models.Payment, error) {
	var out []models.Payment
	cutoff := time.Now().Add(-olderThan)
	err := s.db.
		Where("initiated = ? AND verified = ? AND initiated_at < ?", true, false, cutoff).
		Find(&out).Error
	return out, err
}

func (s *GormStore) AppendLog(entry *models.PaymentLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return s.db.Create(entry).Error
}

// UpdateLogResponse fills in the response of a log row created before the
// response existed. This is the single mutation the audit trail allows.
func (s *GormStore) UpdateLogResponse(id uuid.UUID, response string, pgTxnID *string) error {
	updates := map[string]any{"response_payload": response, "updated_at": time.Now()}
	if pgTxnID != nil {
		updates["pg_txn_id"] = *pgTxnID
	}
	return s.db.Model(&models.PaymentLog{}).Where("id = ?", id).Updates(updates).Error
}

func (s *GormStore) UpdateLogAPIResponse(id uuid.UUID, body string) error {
	return s.db.Model(&models.PaymentLog{}).Where("id = ?", id).
		Updates(map[string]any{"api_response": body, "updated_at": time.Now()}).Error
}
