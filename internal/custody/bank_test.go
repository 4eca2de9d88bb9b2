package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestPullRequiresAllowance(t *testing.T) {
	custodian := uuid.New()
	holder := uuid.New()
	bank := NewBank(custodian)
	ctx := context.Background()

	if err := bank.Mint("TKA", holder, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}

	err := bank.Pull(ctx, "TKA", holder, 10)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected without allowance, got %v", err)
	}

	bank.Approve("TKA", holder, custodian, 10)
	if err := bank.Pull(ctx, "TKA", holder, 10); err != nil {
		t.Fatalf("pull: %v", err)
	}

	if got := bank.BalanceOf("TKA", holder); got != 0 {
		t.Fatalf("expected holder drained, got %d", got)
	}
	if got := bank.CustodyOf("TKA"); got != 10 {
		t.Fatalf("expected custody 10, got %d", got)
	}
	if got := bank.Allowance("TKA", holder, custodian); got != 0 {
		t.Fatalf("expected allowance consumed, got %d", got)
	}
}

func TestPullRejectsBeyondHoldings(t *testing.T) {
	custodian := uuid.New()
	holder := uuid.New()
	bank := NewBank(custodian)
	ctx := context.Background()

	if err := bank.Mint("TKA", holder, 5); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bank.Approve("TKA", holder, custodian, 100)

	err := bank.Pull(ctx, "TKA", holder, 10)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected beyond holdings, got %v", err)
	}
	if got := bank.BalanceOf("TKA", holder); got != 5 {
		t.Fatalf("failed pull must not move holdings, got %d", got)
	}
}

func TestPushReleasesCustody(t *testing.T) {
	custodian := uuid.New()
	holder := uuid.New()
	bank := NewBank(custodian)
	ctx := context.Background()

	if err := bank.Mint("TKA", holder, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	bank.Approve("TKA", holder, custodian, 10)
	if err := bank.Pull(ctx, "TKA", holder, 10); err != nil {
		t.Fatalf("pull: %v", err)
	}

	if err := bank.Push(ctx, "TKA", holder, 10); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := bank.BalanceOf("TKA", holder); got != 10 {
		t.Fatalf("expected holdings restored, got %d", got)
	}
	if got := bank.CustodyOf("TKA"); got != 0 {
		t.Fatalf("expected custody empty, got %d", got)
	}

	err := bank.Push(ctx, "TKA", holder, 1)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected push beyond custody to fail, got %v", err)
	}
}

func TestPullHonoursContext(t *testing.T) {
	custodian := uuid.New()
	holder := uuid.New()
	bank := NewBank(custodian)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bank.Pull(ctx, "TKA", holder, 1)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed on cancelled context, got %v", err)
	}
}
