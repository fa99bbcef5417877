// Package job defines the marketplace job records whose lifecycle the escrow
// engine drives forward.
package job

import "time"

// State is the lifecycle stage of a job. The progression is strictly forward;
// a job never returns to an earlier state.
type State string

const (
	StateAwaitingEscrow    State = "AwaitingEscrow"
	StateProcessingEscrow  State = "ProcessingEscrow"
	StateFundsInEscrow     State = "FundsInEscrow"
	StatePendingCompletion State = "PendingCompletion"
	StateFinishingJob      State = "FinishingJob"
	StateComplete          State = "Complete"
	StateFailed            State = "Failed"
)

// stateRank orders the forward-only progression. Failed ranks above every
// working state so a failing payment can terminate a job from any stage
// without ever allowing a regression.
var stateRank = map[State]int{
	StateAwaitingEscrow:    1,
	StateProcessingEscrow:  2,
	StateFundsInEscrow:     3,
	StatePendingCompletion: 4,
	StateFinishingJob:      5,
	StateComplete:          6,
	StateFailed:            7,
}

// Known reports whether s is one of the defined lifecycle states.
func (s State) Known() bool {
	_, ok := stateRank[s]
	return ok
}

// Terminal reports whether no further transitions are expected from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Milestone types recorded in the action log.
const (
	ActionAuthoriseEscrow   = "Authorise escrow"
	ActionSendFundsToEscrow = "Send funds to escrow"
	ActionCompleteJob       = "Complete job"
	ActionPaymentFailed     = "Payment failed"
)

// ActionLogEntry is one milestone in a job's append-only audit trail.
type ActionLogEntry struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	ExecutedBy string    `json:"executed_by,omitempty"`
	Private    bool      `json:"private"`
	Message    string    `json:"message,omitempty"`
	Amount     string    `json:"amount,omitempty"`
}

// Job is a marketplace engagement funded through escrow.
type Job struct {
	ID              string           `json:"id"`
	HexID           string           `json:"hex_id"`
	Title           string           `json:"title"`
	BudgetUSD       float64          `json:"budget_usd"`
	BudgetTokens    int64            `json:"budget_tokens"`
	ClientAddress   string           `json:"client_address,omitempty"`
	ProviderAddress string           `json:"provider_address,omitempty"`
	State           State            `json:"state"`
	ActionLog       []ActionLogEntry `json:"action_log"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasAction reports whether the action log already contains an entry of the
// given milestone type.
func (j *Job) HasAction(actionType string) bool {
	for _, entry := range j.ActionLog {
		if entry.Type == actionType {
			return true
		}
	}
	return false
}

// AppendOnce appends the entry produced by build unless pred matches an
// existing log entry. It returns true when an entry was appended. All
// milestone writes go through this so the at-most-once-per-type invariant is
// enforced in a single place.
func (j *Job) AppendOnce(pred func(ActionLogEntry) bool, build func() ActionLogEntry) bool {
	for _, entry := range j.ActionLog {
		if pred(entry) {
			return false
		}
	}
	j.ActionLog = append(j.ActionLog, build())
	return true
}

// AppendMilestone appends a milestone entry unless one of the same type is
// already present.
func (j *Job) AppendMilestone(entry ActionLogEntry) bool {
	return j.AppendOnce(
		func(existing ActionLogEntry) bool { return existing.Type == entry.Type },
		func() ActionLogEntry { return entry },
	)
}

// Advance moves the job to the target state if that is a forward transition.
// It returns true when the state changed; requests that would regress or
// repeat the current state are no-ops.
func (j *Job) Advance(to State) bool {
	toRank, ok := stateRank[to]
	if !ok {
		return false
	}
	if fromRank, ok := stateRank[j.State]; ok && toRank <= fromRank {
		return false
	}
	j.State = to
	return true
}
