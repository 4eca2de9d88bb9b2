package ledger

import (
	"errors"
	"math"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the available
	// balance. The ledger is left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrArithmeticOverflow is returned when a credit would wrap the 64-bit
	// balance counter. Never silently truncated.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

type balanceKey struct {
	asset   string
	account uuid.UUID
}

// Ledger tracks the available balance of every (asset, account) pair the
// exchange has seen. Absent pairs read as zero. The only mutation paths are
// Credit and Debit; the engine serializes multi-step operations on top.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
}

func New() *Ledger {
	return &Ledger{balances: make(map[balanceKey]uint64)}
}

func (l *Ledger) Credit(asset string, account uuid.UUID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset: asset, account: account}
	current := l.balances[key]
	if current > math.MaxUint64-amount {
		return ErrArithmeticOverflow
	}
	l.balances[key] = current + amount
	return nil
}

func (l *Ledger) Debit(asset string, account uuid.UUID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset: asset, account: account}
	current := l.balances[key]
	if current < amount {
		return ErrInsufficientBalance
	}
	remaining := current - amount
	if remaining == 0 {
		delete(l.balances, key)
	} else {
		l.balances[key] = remaining
	}
	return nil
}

func (l *Ledger) BalanceOf(asset string, account uuid.UUID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[balanceKey{asset: asset, account: account}]
}

// AssetTotal sums every account balance held for one asset. Used by the
// conservation check: the total must never exceed the custody actually held.
func (l *Ledger) AssetTotal(asset string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for key, amount := range l.balances {
		if key.asset != asset {
			continue
		}
		if total > math.MaxUint64-amount {
			return 0, ErrArithmeticOverflow
		}
		total += amount
	}
	return total, nil
}
