// Package storage defines the persistence interfaces for job and payment
// documents, with interchangeable in-memory, Postgres and Redis backends.
package storage

import (
	"context"
	"errors"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	// GetJob fails with ErrNotFound when the job does not exist.
	GetJob(ctx context.Context, id string) (job.Job, error)
	// SetJob merge-writes the full record, creating it if absent.
	SetJob(ctx context.Context, j job.Job) (job.Job, error)
	ListJobs(ctx context.Context) ([]job.Job, error)
}

// PaymentStore persists payment records.
type PaymentStore interface {
	// GetPayment returns ok=false with a nil error when the payment is not
	// recorded yet; "not being monitored" is a valid state, not a failure.
	GetPayment(ctx context.Context, id string) (payment.Payment, bool, error)
	// SetPayment merge-writes the full record, creating it if absent.
	SetPayment(ctx context.Context, p payment.Payment) (payment.Payment, error)
	ListPaymentsByJob(ctx context.Context, jobID string) ([]payment.Payment, error)
}

// Store combines the persistence interfaces implemented by every backend.
type Store interface {
	JobStore
	PaymentStore
}
