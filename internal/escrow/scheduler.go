package escrow

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/canwork/escrow-service/internal/metrics"
	"github.com/canwork/escrow-service/pkg/logger"
)

// DefaultPollSpec fires a reconciliation tick every 3 seconds.
const DefaultPollSpec = "*/3 * * * * *"

// Scheduler starts and cancels recurring reconciliation polls keyed by
// payment ID. Both operations are idempotent: starting an already-registered
// payment and cancelling an unknown one are no-ops.
type Scheduler interface {
	Start(paymentID string, tick func()) error
	Cancel(paymentID string)
	Active(paymentID string) bool
}

// CronScheduler runs polls on a seconds-resolution cron runner. The registry
// maps payment IDs to cron entries so a payment never has more than one
// concurrent monitor.
type CronScheduler struct {
	cron *cron.Cron
	spec string
	log  *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

var _ Scheduler = (*CronScheduler)(nil)

// NewCronScheduler creates and starts a scheduler. An empty spec uses
// DefaultPollSpec.
func NewCronScheduler(spec string, log *logger.Logger) *CronScheduler {
	if spec == "" {
		spec = DefaultPollSpec
	}
	if log == nil {
		log = logger.NewDefault("escrow-scheduler")
	}
	c := cron.New(cron.WithSeconds())
	c.Start()
	return &CronScheduler{
		cron:    c,
		spec:    spec,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers a recurring tick for the payment. Registering a payment
// that already has an active poll is a no-op; the outer system relies on this
// to call monitor endpoints without tracking prior registrations.
func (s *CronScheduler) Start(paymentID string, tick func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[paymentID]; ok {
		s.log.WithField("payment_id", paymentID).Debug("payment already being monitored")
		return nil
	}

	entryID, err := s.cron.AddFunc(s.spec, tick)
	if err != nil {
		return fmt.Errorf("schedule poll for payment %s: %w", paymentID, err)
	}
	s.entries[paymentID] = entryID
	metrics.SetActiveMonitors(len(s.entries))

	s.log.WithField("payment_id", paymentID).Info("payment monitoring started")
	return nil
}

// Cancel stops and removes the poll for the payment. Cancelling a payment
// with no active poll is a no-op.
func (s *CronScheduler) Cancel(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[paymentID]
	if !ok {
		return
	}
	s.cron.Remove(entryID)
	delete(s.entries, paymentID)
	metrics.SetActiveMonitors(len(s.entries))

	s.log.WithField("payment_id", paymentID).Info("payment monitoring stopped")
}

// Active reports whether the payment currently has a registered poll.
func (s *CronScheduler) Active(paymentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[paymentID]
	return ok
}

// Len returns the number of active polls.
func (s *CronScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop halts the cron runner and clears the registry; intended for process
// shutdown. The active-polls gauge reads zero afterwards.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron.Stop()
	s.entries = make(map[string]cron.EntryID)
	metrics.SetActiveMonitors(0)
}
