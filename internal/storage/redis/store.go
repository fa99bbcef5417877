// Package redis implements the storage interfaces on top of Redis, storing
// each record as a JSON document under a typed key. It mirrors the key-value
// document semantics of the other backends: full-document merge-writes,
// lookup by ID.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
	"github.com/canwork/escrow-service/internal/storage"
)

const (
	jobKeyPrefix     = "escrow:jobs:"
	paymentKeyPrefix = "escrow:payments:"
	jobIndexKey      = "escrow:jobs"
	paymentJobIndex  = "escrow:payments:by-job:"
)

// Store is the Redis-backed document store.
type Store struct {
	client *redis.Client
}

var _ storage.Store = (*Store)(nil)

// New creates a store on an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// --- JobStore ---------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		return job.Job{}, errors.New("job id is required")
	}
	exists, err := s.client.Exists(ctx, jobKeyPrefix+j.ID).Result()
	if err != nil {
		return job.Job{}, err
	}
	if exists > 0 {
		return job.Job{}, fmt.Errorf("job %s already exists", j.ID)
	}

	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	return s.writeJob(ctx, j)
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	raw, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return job.Job{}, fmt.Errorf("job %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return job.Job{}, err
	}

	var j job.Job
	if err := json.Unmarshal(raw, &j); err != nil {
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
	return s.writeJob(ctx, j)
}

func (s *Store) writeJob(ctx context.Context, j job.Job) (job.Job, error) {
	doc, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+j.ID, doc, 0)
	pipe.SAdd(ctx, jobIndexKey, j.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, err
	}

	var result []job.Job
	for _, id := range ids {
		j, err := s.GetJob(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, bool, error) {
	raw, err := s.client.Get(ctx, paymentKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.Payment{}, false, nil
	}
	if err != nil {
		return payment.Payment{}, false, err
	}

	var p payment.Payment
	if err := json.Unmarshal(raw, &p); err != nil {
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
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, paymentKeyPrefix+p.ID, doc, 0)
	if p.JobID != "" {
		pipe.SAdd(ctx, paymentJobIndex+p.JobID, p.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (s *Store) ListPaymentsByJob(ctx context.Context, jobID string) ([]payment.Payment, error) {
	ids, err := s.client.SMembers(ctx, paymentJobIndex+jobID).Result()
	if err != nil {
		return nil, err
	}

	var result []payment.Payment
	for _, id := range ids {
		p, ok, err := s.GetPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, p)
		}
	}
	return result, nil
}
