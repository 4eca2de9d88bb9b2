package custody

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
)

type holdingKey struct {
	asset  string
	holder uuid.UUID
}

type allowanceKey struct {
	asset   string
	owner   uuid.UUID
	spender uuid.UUID
}

// Bank is an in-process Transferer with standard fungible-token semantics:
// per-asset holder balances plus owner->spender allowances. Pull consumes the
// allowance the holder granted to the custodian account, mirroring how an
// exchange pulls pre-approved tokens. It backs the end-to-end tests and any
// single-process deployment; real deployments substitute a remote Transferer.
type Bank struct {
	mu         sync.Mutex
	custodian  uuid.UUID
	holdings   map[holdingKey]uint64
	allowances map[allowanceKey]uint64
}

func NewBank(custodian uuid.UUID) *Bank {
	return &Bank{
		custodian:  custodian,
		holdings:   make(map[holdingKey]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

// Mint creates amount of asset in holder's external holdings. Seed helper;
// not part of the Transferer contract.
func (b *Bank) Mint(asset string, holder uuid.UUID, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := holdingKey{asset: asset, holder: holder}
	if b.holdings[key] > math.MaxUint64-amount {
		return fmt.Errorf("mint overflows holdings of %s", asset)
	}
	b.holdings[key] += amount
	return nil
}

// Approve lets spender move up to amount of owner's asset. Overwrites any
// previous allowance, like the token standard it mirrors.
func (b *Bank) Approve(asset string, owner, spender uuid.UUID, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allowances[allowanceKey{asset: asset, owner: owner, spender: spender}] = amount
}

func (b *Bank) Allowance(asset string, owner, spender uuid.UUID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.allowances[allowanceKey{asset: asset, owner: owner, spender: spender}]
}

func (b *Bank) BalanceOf(asset string, holder uuid.UUID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.holdings[holdingKey{asset: asset, holder: holder}]
}

// CustodyOf returns the pooled holdings controlled by the custodian account.
// The ledger's AssetTotal must never exceed this.
func (b *Bank) CustodyOf(asset string) uint64 {
	return b.BalanceOf(asset, b.custodian)
}

func (b *Bank) Pull(ctx context.Context, asset string, from uuid.UUID, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	allowKey := allowanceKey{asset: asset, owner: from, spender: b.custodian}
	if b.allowances[allowKey] < amount {
		return fmt.Errorf("%w: allowance %d below %d", ErrTransferRejected, b.allowances[allowKey], amount)
	}
	if err := b.move(asset, from, b.custodian, amount, ErrTransferRejected); err != nil {
		return err
	}
	b.allowances[allowKey] -= amount
	return nil
}

func (b *Bank) Push(ctx context.Context, asset string, to uuid.UUID, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// a drained custody pool is a transport-level failure, not a rejection
	return b.move(asset, b.custodian, to, amount, ErrTransferFailed)
}

// move requires b.mu held. short is the error class reported when the source
// holdings cannot cover the movement.
func (b *Bank) move(asset string, from, to uuid.UUID, amount uint64, short error) error {
	fromKey := holdingKey{asset: asset, holder: from}
	toKey := holdingKey{asset: asset, holder: to}
	if b.holdings[fromKey] < amount {
		return fmt.Errorf("%w: holdings %d below %d", short, b.holdings[fromKey], amount)
	}
	if b.holdings[toKey] > math.MaxUint64-amount {
		return fmt.Errorf("%w: destination holdings overflow", ErrTransferFailed)
	}
	b.holdings[fromKey] -= amount
	b.holdings[toKey] += amount
	return nil
}
