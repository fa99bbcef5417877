// Package jobs manages marketplace job records outside of the payment flow.
package jobs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/storage"
	"github.com/canwork/escrow-service/pkg/logger"
)

// hexIDLength is the fixed width of a job's on-chain identifier, a bytes32
// contract argument rendered as hex.
const hexIDLength = 64

// ErrInvalidRequest wraps client input that fails validation.
var ErrInvalidRequest = errors.New("invalid request")

// CreateRequest carries the client-supplied fields of a new job.
type CreateRequest struct {
	Title           string  `json:"title"`
	BudgetUSD       float64 `json:"budget_usd"`
	BudgetTokens    int64   `json:"budget_tokens"`
	ClientAddress   string  `json:"client_address"`
	ProviderAddress string  `json:"provider_address"`
}

// Validate checks the request fields that have no sensible default.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if r.BudgetUSD <= 0 {
		return errors.New("budget_usd must be positive")
	}
	if r.BudgetTokens <= 0 {
		return errors.New("budget_tokens must be positive")
	}
	return nil
}

// Service exposes job creation and retrieval.
type Service struct {
	store storage.JobStore
	log   *logger.Logger
}

// NewService creates a job service backed by the given store.
func NewService(store storage.JobStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	return &Service{store: store, log: log}
}

// Create persists a new job in the AwaitingEscrow state and derives its
// on-chain identifier.
func (s *Service) Create(ctx context.Context, req CreateRequest) (job.Job, error) {
	if err := req.Validate(); err != nil {
		return job.Job{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// 32 hex chars, so the derived bytes32 hex ID carries the full ID.
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	created, err := s.store.CreateJob(ctx, job.Job{
		ID:              id,
		HexID:           HexID(id),
		Title:           strings.TrimSpace(req.Title),
		BudgetUSD:       req.BudgetUSD,
		BudgetTokens:    req.BudgetTokens,
		ClientAddress:   strings.TrimSpace(req.ClientAddress),
		ProviderAddress: strings.TrimSpace(req.ProviderAddress),
		State:           job.StateAwaitingEscrow,
	})
	if err != nil {
		return job.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.log.WithField("job_id", created.ID).Info("job created")
	return created, nil
}

// Get returns the job with the given ID.
func (s *Service) Get(ctx context.Context, id string) (job.Job, error) {
	return s.store.GetJob(ctx, id)
}

// List returns all jobs ordered by creation time.
func (s *Service) List(ctx context.Context) ([]job.Job, error) {
	return s.store.ListJobs(ctx)
}

// HexID renders a job ID as the bytes32 hex argument the escrow contract
// expects: the ID's bytes in hex, right-padded with zeros. IDs longer than 32
// bytes are truncated to fit.
func HexID(id string) string {
	encoded := hex.EncodeToString([]byte(id))
	if len(encoded) > hexIDLength {
		encoded = encoded[:hexIDLength]
	}
	return "0x" + encoded + strings.Repeat("0", hexIDLength-len(encoded))
}
