// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
	"github.com/canwork/escrow-service/internal/storage"
)

// Store is the in-memory document store.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]job.Job
	payments map[string]payment.Payment
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]job.Job),
		payments: make(map[string]payment.Payment),
	}
}

// JobStore implementation ----------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	} else if _, exists := s.jobs[j.ID]; exists {
		return job.Job{}, fmt.Errorf("job %s already exists", j.ID)
	}

	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	j.ActionLog = cloneLog(j.ActionLog)

	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, fmt.Errorf("job %s: %w", id, storage.ErrNotFound)
	}
	return cloneJob(j), nil
}

func (s *Store) SetJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		return job.Job{}, fmt.Errorf("job id is required")
	}

	if original, ok := s.jobs[j.ID]; ok {
		j.CreatedAt = original.CreatedAt
	} else if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = time.Now().UTC()
	j.ActionLog = cloneLog(j.ActionLog)

	s.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *Store) ListJobs(_ context.Context) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, cloneJob(j))
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })
	return result, nil
}

// PaymentStore implementation ------------------------------------------------

func (s *Store) GetPayment(_ context.Context, id string) (payment.Payment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return payment.Payment{}, false, nil
	}
	return clonePayment(p), true, nil
}

func (s *Store) SetPayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		return payment.Payment{}, fmt.Errorf("payment id is required")
	}

	if original, ok := s.payments[p.ID]; ok {
		p.CreatedAt = original.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()
	p.Transactions = cloneTransactions(p.Transactions)

	s.payments[p.ID] = p
	return clonePayment(p), nil
}

func (s *Store) ListPaymentsByJob(_ context.Context, jobID string) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payment.Payment
	for _, p := range s.payments {
		if p.JobID == jobID {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].CreatedAt.Before(result[k].CreatedAt) })
	return result, nil
}

// clone helpers keep callers from mutating shared state through slices.

func cloneJob(j job.Job) job.Job {
	j.ActionLog = cloneLog(j.ActionLog)
	return j
}

func cloneLog(entries []job.ActionLogEntry) []job.ActionLogEntry {
	if entries == nil {
		return nil
	}
	out := make([]job.ActionLogEntry, len(entries))
	copy(out, entries)
	return out
}

func clonePayment(p payment.Payment) payment.Payment {
	p.Transactions = cloneTransactions(p.Transactions)
	return p
}

func cloneTransactions(txs []payment.TrackedTransaction) []payment.TrackedTransaction {
	if txs == nil {
		return nil
	}
	out := make([]payment.TrackedTransaction, len(txs))
	copy(out, txs)
	return out
}
