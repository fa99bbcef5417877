// Package payments orchestrates the payment flows that fund and close jobs:
// initiating payments at the processor, recording them locally and handing
// them to the reconciliation engine.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
	"github.com/canwork/escrow-service/internal/escrow"
	"github.com/canwork/escrow-service/internal/processor"
	"github.com/canwork/escrow-service/internal/storage"
	"github.com/canwork/escrow-service/pkg/logger"
)

// ErrInvalidJobState is returned when a payment is initiated against a job
// whose lifecycle stage does not allow it.
var ErrInvalidJobState = errors.New("job state does not allow this payment")

// InitiatedPayment is returned when a payment has been created at the
// processor and monitoring has begun. Token is the processor's client-side
// token the caller needs to sign the pending transactions.
type InitiatedPayment struct {
	Payment payment.Payment `json:"payment"`
	Token   string          `json:"token,omitempty"`
}

// StatusView is the client-facing projection of a monitored payment.
type StatusView struct {
	ID           string                       `json:"id"`
	JobID        string                       `json:"job_id"`
	Type         payment.Type                 `json:"type"`
	Status       payment.Status               `json:"status"`
	Transactions []payment.TrackedTransaction `json:"transactions"`
	Monitoring   bool                         `json:"monitoring"`
}

// Service wires payment initiation to the processor, persistence and the
// reconciliation engine.
type Service struct {
	jobs      storage.JobStore
	payments  storage.PaymentStore
	processor processor.Client
	monitor   *escrow.Monitor
	scheduler escrow.Scheduler
	log       *logger.Logger
}

// NewService creates the payments service.
func NewService(jobs storage.JobStore, payments storage.PaymentStore, client processor.Client, monitor *escrow.Monitor, scheduler escrow.Scheduler, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("payments")
	}
	return &Service{
		jobs:      jobs,
		payments:  payments,
		processor: client,
		monitor:   monitor,
		scheduler: scheduler,
		log:       log,
	}
}

// InitEscrowPayment starts a fiat payment that funds a job's escrow. The job
// must be awaiting escrow; on success it moves to ProcessingEscrow and the
// payment is monitored until it settles.
func (s *Service) InitEscrowPayment(ctx context.Context, jobID string) (InitiatedPayment, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return InitiatedPayment{}, err
	}
	if j.State != job.StateAwaitingEscrow {
		return InitiatedPayment{}, fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, j.ID, j.State)
	}

	created, err := s.processor.CreateEscrowPayment(ctx, processor.EscrowPaymentRequest{
		JobHexID:        j.HexID,
		Title:           j.Title,
		AmountUSD:       j.BudgetUSD,
		AmountTokens:    j.BudgetTokens,
		ClientAddress:   j.ClientAddress,
		ProviderAddress: j.ProviderAddress,
	})
	if err != nil {
		return InitiatedPayment{}, fmt.Errorf("create escrow payment: %w", err)
	}

	return s.begin(ctx, j, created, payment.TypeJobCreation, job.StateProcessingEscrow)
}

// InitCompletionPayment starts a relayed payment that marks a job as
// completed. The job must be pending completion; on success it moves to
// FinishingJob.
func (s *Service) InitCompletionPayment(ctx context.Context, jobID string) (InitiatedPayment, error) {
	j, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return InitiatedPayment{}, err
	}
	if j.State != job.StatePendingCompletion {
		return InitiatedPayment{}, fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, j.ID, j.State)
	}

	created, err := s.processor.CreateCompletionPayment(ctx, processor.CompletionPaymentRequest{
		JobHexID: j.HexID,
	})
	if err != nil {
		return InitiatedPayment{}, fmt.Errorf("create completion payment: %w", err)
	}

	return s.begin(ctx, j, created, payment.TypeJobCompletion, job.StateFinishingJob)
}

// begin records the freshly created payment, advances the job and registers
// the reconciliation poll.
func (s *Service) begin(ctx context.Context, j job.Job, created processor.CreatedPayment, t payment.Type, next job.State) (InitiatedPayment, error) {
	if created.ID == "" {
		return InitiatedPayment{}, errors.New("processor returned a payment without an id")
	}

	rec, err := s.payments.SetPayment(ctx, payment.Payment{
		ID:     created.ID,
		JobID:  j.ID,
		Type:   t,
		Status: payment.StatusNew,
	})
	if err != nil {
		return InitiatedPayment{}, fmt.Errorf("store payment record: %w", err)
	}

	if j.Advance(next) {
		if _, err := s.jobs.SetJob(ctx, j); err != nil {
			return InitiatedPayment{}, fmt.Errorf("store job state: %w", err)
		}
	}

	if err := s.monitor.Monitor(rec.ID); err != nil {
		return InitiatedPayment{}, fmt.Errorf("start monitoring payment %s: %w", rec.ID, err)
	}

	s.log.WithField("payment_id", rec.ID).
		WithField("job_id", j.ID).
		WithField("type", t).
		Info("payment initiated")

	return InitiatedPayment{Payment: rec, Token: created.Token}, nil
}

// Monitor registers an externally created payment for reconciliation. When no
// local record exists yet one is created, with the payment type inferred from
// the job's current state; the job is advanced to the matching processing
// state. Repeated calls for the same payment are no-ops.
func (s *Service) Monitor(ctx context.Context, paymentID, jobID string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return errors.New("payment id is required")
	}

	rec, ok, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if !ok {
		j, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return fmt.Errorf("resolve job for payment %s: %w", paymentID, err)
		}

		var t payment.Type
		var next job.State
		switch j.State {
		case job.StateAwaitingEscrow, job.StateProcessingEscrow:
			t, next = payment.TypeJobCreation, job.StateProcessingEscrow
		case job.StateFundsInEscrow, job.StatePendingCompletion, job.StateFinishingJob:
			t, next = payment.TypeJobCompletion, job.StateFinishingJob
		default:
			// Terminal or unrecognized states admit no payment.
			return fmt.Errorf("%w: job %s is %s", ErrInvalidJobState, j.ID, j.State)
		}

		rec, err = s.payments.SetPayment(ctx, payment.Payment{
			ID:     paymentID,
			JobID:  j.ID,
			Type:   t,
			Status: payment.StatusNew,
		})
		if err != nil {
			return fmt.Errorf("store payment record: %w", err)
		}
		if j.Advance(next) {
			if _, err := s.jobs.SetJob(ctx, j); err != nil {
				return fmt.Errorf("store job state: %w", err)
			}
		}
	}

	return s.monitor.Monitor(rec.ID)
}

// PaymentStatus returns the current local view of a payment, including
// whether a reconciliation poll is active for it.
func (s *Service) PaymentStatus(ctx context.Context, paymentID string) (StatusView, error) {
	rec, ok, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return StatusView{}, err
	}
	if !ok {
		return StatusView{}, fmt.Errorf("payment %s: %w", paymentID, storage.ErrNotFound)
	}
	return StatusView{
		ID:           rec.ID,
		JobID:        rec.JobID,
		Type:         rec.Type,
		Status:       rec.Status,
		Transactions: rec.Transactions,
		Monitoring:   s.scheduler.Active(rec.ID),
	}, nil
}

// ListByJob returns all payments recorded against a job.
func (s *Service) ListByJob(ctx context.Context, jobID string) ([]payment.Payment, error) {
	return s.payments.ListPaymentsByJob(ctx, jobID)
}

// Resume restarts reconciliation polls for every non-terminal payment on
// record. Called at startup so monitors survive process restarts.
func (s *Service) Resume(ctx context.Context) (int, error) {
	all, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, j := range all {
		recs, err := s.payments.ListPaymentsByJob(ctx, j.ID)
		if err != nil {
			return resumed, err
		}
		for _, rec := range recs {
			if rec.Status.Terminal() {
				continue
			}
			if err := s.monitor.Monitor(rec.ID); err != nil {
				return resumed, err
			}
			resumed++
		}
	}

	if resumed > 0 {
		s.log.WithField("count", resumed).Info("resumed payment monitoring")
	}
	return resumed, nil
}
