package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/artpar/tacoscan/ports"
)

// ErrNotFound is returned when updating an unknown record.
var ErrNotFound = errors.New("not found")

// PaymentLog is an in-memory implementation of ports.PaymentLog.
type PaymentLog struct {
	mu      sync.RWMutex
	records map[string]ports.PaymentRecord // by ID
}

// NewPaymentLog creates a new in-memory payment log.
func NewPaymentLog() *PaymentLog {
	return &PaymentLog{
		records: make(map[string]ports.PaymentRecord),
	}
}

// Create stores a new attempt.
func (s *PaymentLog) Create(ctx context.Context, r ports.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[r.ID] = r
	return nil
}

// Update replaces the mutable fields of an attempt.
func (s *PaymentLog) Update(ctx context.Context, r ports.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[r.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Outcome = r.Outcome
	existing.ApproveTx = r.ApproveTx
	existing.PayTx = r.PayTx
	existing.Error = r.Error
	existing.CompletedAt = r.CompletedAt
	s.records[r.ID] = existing
	return nil
}

// ListByRitual returns attempts for a ritual, newest first.
func (s *PaymentLog) ListByRitual(ctx context.Context, ritualID string, limit int) ([]ports.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ports.PaymentRecord
	for _, r := range s.records {
		if r.RitualID == ritualID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ ports.PaymentLog = (*PaymentLog)(nil)
