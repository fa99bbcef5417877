// Package postgres implements the storage interfaces backed by PostgreSQL.
// Records are stored as JSONB documents keyed by ID so writes keep the
// merge-write (full-document upsert) semantics of the document collaborator.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
	"github.com/canwork/escrow-service/internal/storage"
)

// Store implements the storage interfaces using a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- JobStore ---------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		return job.Job{}, errors.New("job id is required")
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	doc, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrow_jobs (id, state, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, j.ID, string(j.State), doc, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc FROM escrow_jobs WHERE id = $1
	`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return job.Job{}, fmt.Errorf("job %s: %w", id, storage.ErrNotFound)
		}
		return job.Job{}, err
	}

	var j job.Job
	if err := json.Unmarshal(doc, &j); err != nil {
		return job.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return j, nil
}

func (s *Store) SetJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		return job.Job{}, errors.New("job id is required")
	}
	if existing, err := s.GetJob(ctx, j.ID); err == nil {
		j.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, storage.ErrNotFound) {
		return job.Job{}, err
	} else if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrow_jobs (id, state, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, j.ID, string(j.State), doc, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM escrow_jobs ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []job.Job
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var j job.Job
		if err := json.Unmarshal(doc, &j); err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT doc FROM escrow_payments WHERE id = $1
	`, id)

	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.Payment{}, false, nil
		}
		return payment.Payment{}, false, err
	}

	var p payment.Payment
	if err := json.Unmarshal(doc, &p); err != nil {
		return payment.Payment{}, false, fmt.Errorf("decode payment %s: %w", id, err)
	}
	return p, true, nil
}

func (s *Store) SetPayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	if p.ID == "" {
		return payment.Payment{}, errors.New("payment id is required")
	}
	if existing, ok, err := s.GetPayment(ctx, p.ID); err != nil {
		return payment.Payment{}, err
	} else if ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(p)
	if err != nil {
		return payment.Payment{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrow_payments (id, job_id, status, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at
	`, p.ID, p.JobID, string(p.Status), doc, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (s *Store) ListPaymentsByJob(ctx context.Context, jobID string) ([]payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM escrow_payments WHERE job_id = $1 ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.Payment
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p payment.Payment
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
