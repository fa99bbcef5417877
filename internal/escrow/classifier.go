// Package escrow contains the payment reconciliation engine: the classifier
// for processor-reported transaction states, the recurring poll scheduler and
// the monitor that drives job lifecycles from observed payment status.
package escrow

import "strings"

// Classification is the lifecycle state of a single sub-transaction as
// derived from the processor's raw status and the presence of a chain hash.
type Classification int

const (
	// Unknown covers everything that cannot be acted upon: no hash yet
	// (including a status of New before broadcast) or an unrecognized status.
	Unknown Classification = iota
	// Broadcasted means the transaction is in flight with a known hash.
	Broadcasted
	// Mined means the transaction succeeded on chain.
	Mined
	// Reverted means the transaction failed on chain.
	Reverted
)

func (c Classification) String() string {
	switch c {
	case Broadcasted:
		return "Broadcasted"
	case Mined:
		return "Mined"
	case Reverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// Classify maps a raw processor sub-transaction status and its transaction
// hash onto a Classification. It is pure: no side effects, deterministic, and
// it never fails — unmapped input is Unknown, not an error, because a status
// of New with no hash simply means the transaction has not been broadcast.
func Classify(status, hash string) Classification {
	if strings.TrimSpace(hash) == "" {
		return Unknown
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PROCESSING":
		return Broadcasted
	case "SUCCESSFUL":
		return Mined
	case "FAILED":
		return Reverted
	default:
		return Unknown
	}
}
