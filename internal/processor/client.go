package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/canwork/escrow-service/pkg/logger"
)

// Client is the payment processor API surface the service depends on.
type Client interface {
	// GetPayment fetches the current status of a payment.
	GetPayment(ctx context.Context, paymentID string) (PaymentResult, error)
	// CreateEscrowPayment initiates a fiat payment funding a job's escrow.
	CreateEscrowPayment(ctx context.Context, req EscrowPaymentRequest) (CreatedPayment, error)
	// CreateCompletionPayment initiates a relayed payment completing a job.
	CreateCompletionPayment(ctx context.Context, req CompletionPaymentRequest) (CreatedPayment, error)
}

// Config holds the processor connection settings.
type Config struct {
	BaseURL           string
	APIKey            string
	APISecret         string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// HTTPClient talks to the processor's REST API. Responses are parsed
// tolerantly: missing or unexpected fields degrade to empty values rather
// than errors, since the reconciliation engine treats anything it cannot
// classify as a no-op.
type HTTPClient struct {
	baseURL string
	apiKey  string
	secret  string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a processor client from configuration.
func NewHTTPClient(cfg Config, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.NewDefault("processor")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  cfg.APISecret,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:     log,
	}
}

// GetPayment fetches and decodes the processor's view of a payment.
func (c *HTTPClient) GetPayment(ctx context.Context, paymentID string) (PaymentResult, error) {
	body, err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return PaymentResult{}, err
	}
	return parsePaymentResult(paymentID, body), nil
}

// CreateEscrowPayment submits a fiat payment request covering the approve and
// createJob transactions for a job.
func (c *HTTPClient) CreateEscrowPayment(ctx context.Context, req EscrowPaymentRequest) (CreatedPayment, error) {
	payload := map[string]any{
		"currency": "USD",
		"items": []map[string]any{{
			"description": req.Title,
			"lineAmount":  req.AmountUSD,
			"quantity":    1,
		}},
		"fundTxData": map[string]any{
			"tokenAmount": req.AmountTokens,
		},
		"jobId":           req.JobHexID,
		"clientAddress":   req.ClientAddress,
		"providerAddress": req.ProviderAddress,
	}
	body, err := c.do(ctx, http.MethodPost, "/payments/fiat", payload)
	if err != nil {
		return CreatedPayment{}, err
	}
	return parseCreatedPayment(body), nil
}

// CreateCompletionPayment submits a relayed payment request covering the
// completeJob transaction.
func (c *HTTPClient) CreateCompletionPayment(ctx context.Context, req CompletionPaymentRequest) (CreatedPayment, error) {
	payload := map[string]any{
		"jobId": req.JobHexID,
	}
	body, err := c.do(ctx, http.MethodPost, "/payments/relayed", payload)
	if err != nil {
		return CreatedPayment{}, err
	}
	return parseCreatedPayment(body), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.SetBasicAuth(c.apiKey, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("processor response read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor %s %s: status %d: %s", method, path, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func parsePaymentResult(paymentID string, body []byte) PaymentResult {
	result := PaymentResult{
		ID:     firstString(body, "_id", "id"),
		Status: gjson.GetBytes(body, "status").String(),
	}
	if result.ID == "" {
		result.ID = paymentID
	}
	gjson.GetBytes(body, "genericTransactions").ForEach(func(_, tx gjson.Result) bool {
		result.Transactions = append(result.Transactions, parseGenericTransaction(tx))
		return true
	})
	return result
}

func parseCreatedPayment(body []byte) CreatedPayment {
	created := CreatedPayment{
		ID:    firstString(body, "_id", "id", "paymentId"),
		Token: firstString(body, "limeToken", "token", "paymentToken"),
	}
	gjson.GetBytes(body, "genericTransactions").ForEach(func(_, tx gjson.Result) bool {
		created.Transactions = append(created.Transactions, parseGenericTransaction(tx))
		return true
	})
	return created
}

func parseGenericTransaction(tx gjson.Result) GenericTransaction {
	out := GenericTransaction{
		Status:          tx.Get("status").String(),
		TransactionHash: tx.Get("transactionHash").String(),
		FunctionName:    tx.Get("functionName").String(),
	}
	tx.Get("functionParams").ForEach(func(_, param gjson.Result) bool {
		out.FunctionParams = append(out.FunctionParams, FunctionParam{
			Type:  param.Get("type").String(),
			Value: param.Get("value").String(),
		})
		return true
	})
	return out
}

func firstString(body []byte, paths ...string) string {
	for _, path := range paths {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
