// Package httpapi exposes the REST surface of the escrow service.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/canwork/escrow-service/internal/jobs"
	"github.com/canwork/escrow-service/internal/metrics"
	"github.com/canwork/escrow-service/internal/payments"
	"github.com/canwork/escrow-service/internal/storage"
	"github.com/canwork/escrow-service/pkg/logger"
)

// Handler routes the service's HTTP endpoints.
type Handler struct {
	jobs     *jobs.Service
	payments *payments.Service
	log      *logger.Logger
	started  time.Time
}

// NewHandler creates the HTTP handler.
func NewHandler(jobSvc *jobs.Service, paymentSvc *payments.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{
		jobs:     jobSvc,
		payments: paymentSvc,
		log:      log,
		started:  time.Now(),
	}
}

// Router builds the mux router with all routes and middleware attached.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/jobs", h.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/jobs", h.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", h.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}/payments", h.handleListJobPayments).Methods(http.MethodGet)

	r.HandleFunc("/payments/escrow", h.handleInitEscrowPayment).Methods(http.MethodPost)
	r.HandleFunc("/payments/completion", h.handleInitCompletionPayment).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}/monitor", h.handleMonitorPayment).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}/status", h.handlePaymentStatus).Methods(http.MethodGet)

	return metrics.InstrumentHandler(h.logRequests(r))
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("duration", time.Since(start).String()).
			Debug("request handled")
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	type systemStats struct {
		CPUPercent    float64 `json:"cpu_percent"`
		MemoryPercent float64 `json:"memory_percent"`
	}
	stats := systemStats{}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
		"system": stats,
	})
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobs.CreateRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	created, err := h.jobs.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	all, err := h.jobs.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) handleListJobPayments(w http.ResponseWriter, r *http.Request) {
	recs, err := h.payments.ListByJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type initPaymentRequest struct {
	JobID string `json:"job_id"`
}

func (h *Handler) handleInitEscrowPayment(w http.ResponseWriter, r *http.Request) {
	var req initPaymentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	initiated, err := h.payments.InitEscrowPayment(r.Context(), req.JobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiated)
}

func (h *Handler) handleInitCompletionPayment(w http.ResponseWriter, r *http.Request) {
	var req initPaymentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	initiated, err := h.payments.InitCompletionPayment(r.Context(), req.JobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiated)
}

func (h *Handler) handleMonitorPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	paymentID := mux.Vars(r)["id"]
	if err := h.payments.Monitor(r.Context(), paymentID, req.JobID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"payment_id": paymentID,
		"monitoring": "started",
	})
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.payments.PaymentStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payments.ErrInvalidJobState):
		status = http.StatusConflict
	case errors.Is(err, jobs.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
