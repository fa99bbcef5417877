package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/escrow"
	"github.com/canwork/escrow-service/internal/jobs"
	"github.com/canwork/escrow-service/internal/payments"
	"github.com/canwork/escrow-service/internal/processor"
	"github.com/canwork/escrow-service/internal/storage/memory"
)

type stubClient struct{}

func (stubClient) GetPayment(ctx context.Context, paymentID string) (processor.PaymentResult, error) {
	return processor.PaymentResult{ID: paymentID, Status: "NEW"}, nil
}

func (stubClient) CreateEscrowPayment(ctx context.Context, req processor.EscrowPaymentRequest) (processor.CreatedPayment, error) {
	return processor.CreatedPayment{ID: "pay-1", Token: "tok-1"}, nil
}

func (stubClient) CreateCompletionPayment(ctx context.Context, req processor.CompletionPaymentRequest) (processor.CreatedPayment, error) {
	return processor.CreatedPayment{ID: "pay-2", Token: "tok-2"}, nil
}

type mapSched map[string]func()

func (m mapSched) Start(id string, tick func()) error { m[id] = tick; return nil }
func (m mapSched) Cancel(id string)                   { delete(m, id) }
func (m mapSched) Active(id string) bool              { _, ok := m[id]; return ok }

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	client := stubClient{}
	sched := make(mapSched)
	monitor := escrow.NewMonitor(client, store, store, sched, nil)
	paymentSvc := payments.NewService(store, store, client, monitor, sched, nil)
	jobSvc := jobs.NewService(store, nil)

	srv := httptest.NewServer(NewHandler(jobSvc, paymentSvc, nil).Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateAndGetJob(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/jobs", `{"title": "Logo design", "budget_usd": 150, "budget_tokens": 150000000}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created job.Job
	decodeBody(t, resp, &created)
	if created.ID == "" || created.State != job.StateAwaitingEscrow {
		t.Fatalf("unexpected job: %+v", created)
	}

	getResp, err := http.Get(srv.URL + "/jobs/" + created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", getResp.StatusCode)
	}
	var fetched job.Job
	decodeBody(t, getResp, &fetched)
	if fetched.ID != created.ID {
		t.Fatalf("unexpected job: %+v", fetched)
	}
}

func TestCreateJobValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/jobs", `{"budget_usd": 150}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/jobs", `not json`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJobNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/jobs/ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestInitEscrowPaymentFlow(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)

	if _, err := store.SetJob(ctx, job.Job{ID: "job-1", HexID: "0xjob", Title: "x", BudgetUSD: 1, BudgetTokens: 1, State: job.StateAwaitingEscrow}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	resp := postJSON(t, srv.URL+"/payments/escrow", `{"job_id": "job-1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var initiated payments.InitiatedPayment
	decodeBody(t, resp, &initiated)
	if initiated.Payment.ID != "pay-1" || initiated.Token != "tok-1" {
		t.Fatalf("unexpected response: %+v", initiated)
	}

	// Second attempt conflicts: the job has left AwaitingEscrow.
	resp = postJSON(t, srv.URL+"/payments/escrow", `{"job_id": "job-1"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	statusResp, err := http.Get(srv.URL + "/payments/pay-1/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", statusResp.StatusCode)
	}
	var view payments.StatusView
	decodeBody(t, statusResp, &view)
	if view.ID != "pay-1" || !view.Monitoring {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestMonitorEndpoint(t *testing.T) {
	ctx := context.Background()
	srv, store := newTestServer(t)

	if _, err := store.SetJob(ctx, job.Job{ID: "job-1", State: job.StateAwaitingEscrow}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	resp := postJSON(t, srv.URL+"/payments/pay-ext/monitor", `{"job_id": "job-1"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	if _, ok, _ := store.GetPayment(ctx, "pay-ext"); !ok {
		t.Fatal("payment record should be created")
	}
}

func TestPaymentStatusNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/payments/ghost/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
