package store

import (
	"sync"
	"time"

	"github.com/anjiri1684/payment_gateway/models"
	"github.com/google/uuid"
)

// MemoryStore keeps payments and logs in maps, emulating the row-lock
// semantics of the Postgres store with one mutex per payment key. Used by
// tests and local experiments.
type MemoryStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	logs     []*models.PaymentLog
	rowLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*models.Payment),
		rowLocks: make(map[string]*sync.Mutex),
	}
}

func paymentKey(serviceFrom, referenceID string) string {
	return serviceFrom + "|" + referenceID
}

func (s *MemoryStore) Find(serviceFrom, referenceID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentKey(serviceFrom, referenceID)]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindOrCreate(payment *models.Payment) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := paymentKey(payment.ServiceFrom, payment.ReferenceID)
	if existing, ok := s.payments[key]; ok {
		cp := *existing
		return &cp, false, nil
	}
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	cp := *payment
	s.payments[key] = &cp
	return payment, true, nil
}

func (s *MemoryStore) Save(payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment.UpdatedAt = time.Now()
	cp := *payment
	s.payments[paymentKey(payment.ServiceFrom, payment.ReferenceID)] = &cp
	return nil
}

// WithLock blocks on the per-row mutex like SELECT ... FOR UPDATE blocks on
// the row lock, then hands fn a fresh copy of the payment.
func (s *MemoryStore) WithLock(serviceFrom, referenceID string, fn func(tx Store, p *models.Payment) error) error {
	key := paymentKey(serviceFrom, referenceID)

	s.mu.Lock()
	lock, ok := s.rowLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.rowLocks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	p, err := s.Find(serviceFrom, referenceID)
	if err != nil {
		return err
	}
	return fn(s, p)
}

func (s *MemoryStore) StaleInitiated(olderThan time.Duration) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.Payment
	for _, p := range s.payments {
		if p.Initiated && !p.Verified && p.InitiatedAt != nil && p.InitiatedAt.Before(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendLog(entry *models.PaymentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()
	cp := *entry
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *MemoryStore) UpdateLogResponse(id uuid.UUID, response string, pgTxnID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			l.ResponsePayload = &response
			if pgTxnID != nil {
				l.PgTxnID = pgTxnID
			}
			l.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) UpdateLogAPIResponse(id uuid.UUID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			l.APIResponse = &body
			l.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

// Logs returns a snapshot of the audit trail.
func (s *MemoryStore) Logs() []models.PaymentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PaymentLog, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, *l)
	}
	return out
}
