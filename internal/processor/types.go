// Package processor provides the client to the off-chain payment processor.
// The processor is treated as a black box: it creates payments wrapping one or
// more signable blockchain transactions and reports their status while they
// settle.
package processor

// FunctionParam is one decoded argument of a contract call attached to a
// generic transaction. Values are kept as strings; numeric parameters are
// decoded by the caller that knows the token's precision.
type FunctionParam struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// GenericTransaction is one blockchain call belonging to a payment, as
// reported by the processor. TransactionHash is empty until the transaction
// has been broadcast.
type GenericTransaction struct {
	Status          string          `json:"status"`
	TransactionHash string          `json:"transactionHash"`
	FunctionName    string          `json:"functionName"`
	FunctionParams  []FunctionParam `json:"functionParams"`
}

// PaymentResult is the processor's view of a payment: the overall status plus
// the per-transaction breakdown.
type PaymentResult struct {
	ID           string
	Status       string
	Transactions []GenericTransaction
}

// EscrowPaymentRequest describes a fiat payment funding a job's escrow. The
// processor derives the approve and createJob transactions from it.
type EscrowPaymentRequest struct {
	JobHexID        string
	Title           string
	AmountUSD       float64
	AmountTokens    int64
	ClientAddress   string
	ProviderAddress string
}

// CompletionPaymentRequest describes a relayed payment marking a job as
// completed.
type CompletionPaymentRequest struct {
	JobHexID string
}

// CreatedPayment is returned when the processor accepts a payment request.
// Token is presented to the client application so the shopper can sign the
// pending transactions.
type CreatedPayment struct {
	ID           string
	Token        string
	Transactions []GenericTransaction
}
