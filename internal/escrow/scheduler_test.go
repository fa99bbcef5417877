package escrow

import "testing"

// A spec that effectively never fires during a test run.
const quietSpec = "0 0 0 1 1 *"

func TestCronSchedulerStartIsIdempotent(t *testing.T) {
	s := NewCronScheduler(quietSpec, nil)
	defer s.Stop()

	ticks := 0
	if err := s.Start("pay-1", func() { ticks++ }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start("pay-1", func() { ticks++ }); err != nil {
		t.Fatalf("duplicate start: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", s.Len())
	}
	if !s.Active("pay-1") {
		t.Fatal("pay-1 should be active")
	}
	if s.Active("pay-2") {
		t.Fatal("pay-2 should not be active")
	}
}

func TestCronSchedulerCancel(t *testing.T) {
	s := NewCronScheduler(quietSpec, nil)
	defer s.Stop()

	if err := s.Start("pay-1", func() {}); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Cancel("pay-1")
	if s.Active("pay-1") {
		t.Fatal("pay-1 should be cancelled")
	}
	if s.Len() != 0 {
		t.Fatalf("expected 0 entries, got %d", s.Len())
	}

	// Cancelling an unknown payment is a no-op.
	s.Cancel("pay-1")
	s.Cancel("never-started")
}

func TestCronSchedulerStopClearsRegistry(t *testing.T) {
	s := NewCronScheduler(quietSpec, nil)

	if err := s.Start("pay-1", func() {}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start("pay-2", func() {}); err != nil {
		t.Fatalf("start: %v", err)
	}

	s.Stop()
	if s.Len() != 0 {
		t.Fatalf("expected empty registry after stop, got %d", s.Len())
	}
	if s.Active("pay-1") || s.Active("pay-2") {
		t.Fatal("no payment should be active after stop")
	}
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	s := NewCronScheduler("not a cron spec", nil)
	defer s.Stop()

	if err := s.Start("pay-1", func() {}); err == nil {
		t.Fatal("expected an error for an invalid poll spec")
	}
	if s.Active("pay-1") {
		t.Fatal("failed registration must not leave an entry behind")
	}
}
