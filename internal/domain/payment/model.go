// Package payment defines the persisted view of an off-chain processor
// payment and the on-chain transactions it is expected to produce.
package payment

import (
	"strings"
	"time"
)

// Status mirrors the processor's last-observed overall payment status.
type Status string

const (
	StatusNew        Status = "New"
	StatusProcessing Status = "Processing"
	StatusSuccessful Status = "Successful"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether no further status change is expected.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// ParseStatus maps a raw processor status string onto a known Status. The
// second return value is false for unrecognized input.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NEW":
		return StatusNew, true
	case "PROCESSING":
		return StatusProcessing, true
	case "SUCCESSFUL":
		return StatusSuccessful, true
	case "FAILED":
		return StatusFailed, true
	default:
		return "", false
	}
}

// Type determines which sub-transaction sequence a payment produces and which
// job-state transition applies when it succeeds.
type Type string

const (
	TypeJobCreation   Type = "JobCreation"
	TypeJobCompletion Type = "JobCompletion"
)

// TxAction identifies the logical contract call behind a sub-transaction.
type TxAction string

const (
	TxActionApprove     TxAction = "approve"
	TxActionCreateJob   TxAction = "createJob"
	TxActionCompleteJob TxAction = "completeJob"
)

// ExpectedActions returns the ordered sub-transaction sequence for a payment
// type: token approval then job creation for escrow funding, a single
// completion call otherwise.
func ExpectedActions(t Type) []TxAction {
	if t == TypeJobCreation {
		return []TxAction{TxActionApprove, TxActionCreateJob}
	}
	return []TxAction{TxActionCompleteJob}
}

// TrackedTransaction records one observed on-chain call of a payment.
// Success and Failure are mutually exclusive and latch: once either is set it
// is never reset.
type TrackedTransaction struct {
	Hash       string    `json:"hash"`
	ActionType TxAction  `json:"action_type"`
	Success    bool      `json:"success"`
	Failure    bool      `json:"failure"`
	Timestamp  time.Time `json:"timestamp"`
}

// Payment is the persisted record of a processor payment funding or closing a
// job. It is created when a client initiates payment and mutated only by the
// reconciliation engine afterwards; records are kept as an audit trail and
// never deleted.
type Payment struct {
	ID           string               `json:"id"`
	JobID        string               `json:"job_id"`
	Type         Type                 `json:"type"`
	Status       Status               `json:"status"`
	Transactions []TrackedTransaction `json:"transactions"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Tracked returns the tracked transaction with the given hash, or nil.
func (p *Payment) Tracked(hash string) *TrackedTransaction {
	for i := range p.Transactions {
		if p.Transactions[i].Hash == hash {
			return &p.Transactions[i]
		}
	}
	return nil
}

// Track returns the tracked transaction for hash, appending a fresh pending
// record if the hash has not been seen before. A given hash therefore appears
// at most once in Transactions no matter how often the same observation
// repeats.
func (p *Payment) Track(hash string, action TxAction, observedAt time.Time) *TrackedTransaction {
	if tx := p.Tracked(hash); tx != nil {
		return tx
	}
	p.Transactions = append(p.Transactions, TrackedTransaction{
		Hash:       hash,
		ActionType: action,
		Timestamp:  observedAt,
	})
	return &p.Transactions[len(p.Transactions)-1]
}
