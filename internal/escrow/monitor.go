package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/domain/payment"
	"github.com/canwork/escrow-service/internal/metrics"
	"github.com/canwork/escrow-service/internal/processor"
	"github.com/canwork/escrow-service/internal/storage"
	"github.com/canwork/escrow-service/pkg/logger"
)

// executedBySystem marks action-log entries appended by the engine rather
// than a user.
const executedBySystem = "escrow-service"

// Monitor is the reconciliation engine. It owns a recurring poll per payment:
// each tick fetches the processor's view of the payment, classifies every
// expected sub-transaction, applies idempotent updates to the persisted
// payment and job records, and cancels the poll once the payment reaches a
// terminal status.
//
// Every mutation is safe to re-apply: transaction tracking dedups by hash,
// success/failure flags latch, milestones append at most once per type and
// job state only moves forward. Overlapping or repeated ticks therefore
// cannot corrupt state, which is the engine's answer to an external system of
// record it does not control.
type Monitor struct {
	processor processor.Client
	jobs      storage.JobStore
	payments  storage.PaymentStore
	scheduler Scheduler
	log       *logger.Logger

	tokenDecimals int
	tickTimeout   time.Duration
}

// NewMonitor constructs the reconciliation engine.
func NewMonitor(client processor.Client, jobs storage.JobStore, payments storage.PaymentStore, scheduler Scheduler, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewDefault("escrow-monitor")
	}
	return &Monitor{
		processor:     client,
		jobs:          jobs,
		payments:      payments,
		scheduler:     scheduler,
		log:           log,
		tokenDecimals: DefaultTokenDecimals,
		tickTimeout:   10 * time.Second,
	}
}

// SetTokenDecimals overrides the decimal precision used when decoding
// approved token amounts.
func (m *Monitor) SetTokenDecimals(decimals int) {
	if decimals >= 0 {
		m.tokenDecimals = decimals
	}
}

// Monitor registers the payment for recurring reconciliation. Safe to call
// multiple times for the same ID; only one poll runs per payment.
func (m *Monitor) Monitor(paymentID string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return errors.New("payment id is required")
	}
	return m.scheduler.Start(paymentID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.tickTimeout)
		defer cancel()
		m.Reconcile(ctx, paymentID)
	})
}

// Reconcile performs a single reconciliation pass for the payment. It never
// returns an error and never panics outward: a failed tick is logged and
// retried by the next scheduled tick, so a transient fault can at worst delay
// reconciliation.
func (m *Monitor) Reconcile(ctx context.Context, paymentID string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordTick(metrics.TickPanic)
			m.log.WithField("payment_id", paymentID).
				Errorf("reconcile panic recovered: %v", r)
		}
	}()

	remote, err := m.processor.GetPayment(ctx, paymentID)
	if err != nil {
		metrics.RecordTick(metrics.TickFetchError)
		m.log.WithError(err).WithField("payment_id", paymentID).
			Warn("payment status fetch failed, retrying on next tick")
		return
	}

	pay, ok, err := m.payments.GetPayment(ctx, paymentID)
	if err != nil {
		metrics.RecordTick(metrics.TickStoreError)
		m.log.WithError(err).WithField("payment_id", paymentID).
			Error("payment record load failed")
		return
	}
	if !ok {
		metrics.RecordTick(metrics.TickRecordMissing)
		m.log.WithField("payment_id", paymentID).
			Error("payment record missing, tick abandoned")
		return
	}

	j, err := m.jobs.GetJob(ctx, pay.JobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RecordTick(metrics.TickRecordMissing)
		} else {
			metrics.RecordTick(metrics.TickStoreError)
		}
		m.log.WithError(err).
			WithField("payment_id", paymentID).
			WithField("job_id", pay.JobID).
			Error("job record load failed, tick abandoned")
		return
	}

	now := time.Now().UTC()
	jobDirty := false

	for i, action := range payment.ExpectedActions(pay.Type) {
		if i >= len(remote.Transactions) {
			break
		}
		sub := remote.Transactions[i]

		switch Classify(sub.Status, sub.TransactionHash) {
		case Broadcasted:
			pay.Track(sub.TransactionHash, action, now)

		case Mined:
			// Track backfills the record if the Broadcasted tick was missed.
			// Success and Failure are mutually exclusive; whichever latched
			// first wins, so a reverted transaction never flips to success.
			tx := pay.Track(sub.TransactionHash, action, now)
			if !tx.Failure {
				tx.Success = true
				if action == payment.TxActionApprove {
					if m.appendMilestone(&j, job.ActionLogEntry{
						Type:       job.ActionAuthoriseEscrow,
						Timestamp:  now,
						ExecutedBy: executedBySystem,
						Message:    "Token transfer approved for escrow",
						Amount:     ApproveAmount(sub.FunctionParams, m.tokenDecimals),
					}) {
						jobDirty = true
					}
				}
			}

		case Reverted:
			tx := pay.Track(sub.TransactionHash, action, now)
			if !tx.Success {
				tx.Failure = true
			}

		case Unknown:
			// Not broadcast yet, or a status this engine does not recognize.
		}
	}

	status, known := payment.ParseStatus(remote.Status)
	if known {
		pay.Status = status
	} else if remote.Status != "" {
		m.log.WithField("payment_id", paymentID).
			WithField("status", remote.Status).
			Warn("unrecognized payment status, keeping last known")
	}

	if _, err := m.payments.SetPayment(ctx, pay); err != nil {
		metrics.RecordTick(metrics.TickStoreError)
		m.log.WithError(err).WithField("payment_id", paymentID).
			Error("payment record write failed")
		return
	}

	if known && status.Terminal() {
		if m.applyTerminal(&j, pay, status, now) {
			jobDirty = true
		}
	}

	if jobDirty {
		if _, err := m.jobs.SetJob(ctx, j); err != nil {
			// Keep the poll registered: the next tick re-derives the same
			// mutations idempotently and retries the write.
			metrics.RecordTick(metrics.TickStoreError)
			m.log.WithError(err).
				WithField("payment_id", paymentID).
				WithField("job_id", j.ID).
				Error("job record write failed")
			return
		}
	}

	if known && status.Terminal() {
		metrics.RecordTerminalPayment(string(status), string(pay.Type))
		m.scheduler.Cancel(paymentID)
		m.log.WithField("payment_id", paymentID).
			WithField("job_id", pay.JobID).
			WithField("status", status).
			Info("payment reached terminal status, monitoring stopped")
	}

	metrics.RecordTick(metrics.TickOK)
}

// applyTerminal advances the job and appends the milestone for a payment
// that reached a terminal status. Returns true when the job changed.
func (m *Monitor) applyTerminal(j *job.Job, pay payment.Payment, status payment.Status, now time.Time) bool {
	dirty := false

	if status == payment.StatusSuccessful {
		target := job.StateComplete
		milestone := job.ActionCompleteJob
		message := "Job marked as complete"
		if pay.Type == payment.TypeJobCreation {
			target = job.StateFundsInEscrow
			milestone = job.ActionSendFundsToEscrow
			message = "Funds transferred to escrow"
		}
		if j.Advance(target) {
			dirty = true
		}
		if m.appendMilestone(j, job.ActionLogEntry{
			Type:       milestone,
			Timestamp:  now,
			ExecutedBy: executedBySystem,
			Message:    message,
		}) {
			dirty = true
		}
		return dirty
	}

	if j.Advance(job.StateFailed) {
		dirty = true
	}
	if m.appendMilestone(j, job.ActionLogEntry{
		Type:       job.ActionPaymentFailed,
		Timestamp:  now,
		ExecutedBy: executedBySystem,
		Private:    true,
		Message:    fmt.Sprintf("%s payment %s failed at the processor", pay.Type, pay.ID),
	}) {
		dirty = true
	}
	return dirty
}

func (m *Monitor) appendMilestone(j *job.Job, entry job.ActionLogEntry) bool {
	if !j.AppendMilestone(entry) {
		return false
	}
	metrics.RecordMilestone(entry.Type)
	return true
}
