package fee

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestNewPolicyValidation(t *testing.T) {
	if _, err := NewPolicy(uuid.Nil, 10); err == nil {
		t.Fatal("expected nil fee account to be rejected")
	}
	if _, err := NewPolicy(uuid.New(), 101); err == nil {
		t.Fatal("expected percent above 100 to be rejected")
	}

	account := uuid.New()
	p, err := NewPolicy(account, 10)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if p.Account() != account {
		t.Fatalf("account accessor mismatch")
	}
	if p.Percent() != 10 {
		t.Fatalf("percent accessor mismatch, got %d", p.Percent())
	}
}

func TestAmountTruncates(t *testing.T) {
	p, err := NewPolicy(uuid.New(), 10)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}

	cases := []struct {
		amount uint64
		want   uint64
	}{
		{0, 0},
		{1, 0},    // floor(0.1)
		{9, 0},    // floor(0.9)
		{10, 1},
		{99, 9},   // floor(9.9)
		{100, 10},
		{101, 10}, // floor(10.1)
		{1000, 100},
		{math.MaxUint64, math.MaxUint64 / 10},
	}
	for _, tc := range cases {
		if got := p.Amount(tc.amount); got != tc.want {
			t.Fatalf("fee of %d: expected %d, got %d", tc.amount, tc.want, got)
		}
	}
}

func TestAmountBounds(t *testing.T) {
	zero, err := NewPolicy(uuid.New(), 0)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if got := zero.Amount(math.MaxUint64); got != 0 {
		t.Fatalf("zero percent must charge nothing, got %d", got)
	}

	full, err := NewPolicy(uuid.New(), 100)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if got := full.Amount(math.MaxUint64); got != math.MaxUint64 {
		t.Fatalf("100 percent of max must be max, got %d", got)
	}
	if got := full.Amount(12345); got != 12345 {
		t.Fatalf("100 percent must take the whole amount, got %d", got)
	}
}
