package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/canwork/escrow-service/internal/domain/job"
	"github.com/canwork/escrow-service/internal/storage/memory"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	created, err := svc.Create(ctx, CreateRequest{
		Title:        "Logo design",
		BudgetUSD:    150,
		BudgetTokens: 150000000,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	if created.State != job.StateAwaitingEscrow {
		t.Fatalf("state = %s, want AwaitingEscrow", created.State)
	}
	if created.HexID != HexID(created.ID) {
		t.Fatalf("hex id %q does not match id %q", created.HexID, created.ID)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Logo design" {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), nil)

	cases := []CreateRequest{
		{BudgetUSD: 150, BudgetTokens: 1},
		{Title: "x", BudgetTokens: 1},
		{Title: "x", BudgetUSD: 150},
		{Title: "x", BudgetUSD: -1, BudgetTokens: 1},
	}
	for i, req := range cases {
		if _, err := svc.Create(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestHexID(t *testing.T) {
	got := HexID("job-1")
	if !strings.HasPrefix(got, "0x") {
		t.Fatalf("missing 0x prefix: %s", got)
	}
	if len(got) != 2+64 {
		t.Fatalf("expected fixed 32-byte width, got len %d", len(got))
	}
	// "job-1" in hex, zero padded on the right.
	if !strings.HasPrefix(got, "0x6a6f622d31") {
		t.Fatalf("unexpected encoding: %s", got)
	}
	if !strings.HasSuffix(got, "0") {
		t.Fatalf("expected right padding: %s", got)
	}

	long := HexID(strings.Repeat("a", 100))
	if len(long) != 2+64 {
		t.Fatalf("long ids must be truncated to 32 bytes, got len %d", len(long))
	}
}
