package fee

import (
	"fmt"

	"github.com/google/uuid"
)

// Policy is the fee configuration supplied once at engine construction:
// the collecting account and a whole-number percentage of the buy side of
// every filled trade. Immutable after NewPolicy.
type Policy struct {
	account uuid.UUID
	percent uint64
}

func NewPolicy(account uuid.UUID, percent uint64) (Policy, error) {
	if account == uuid.Nil {
		return Policy{}, fmt.Errorf("fee account is required")
	}
	if percent > 100 {
		return Policy{}, fmt.Errorf("fee percent must be between 0 and 100, got %d", percent)
	}
	return Policy{account: account, percent: percent}, nil
}

func (p Policy) Account() uuid.UUID {
	return p.account
}

func (p Policy) Percent() uint64 {
	return p.percent
}

// Amount returns floor(amount * percent / 100), truncating toward zero. The
// fee is taken out of what the order owner receives, not added on top of what
// the taker pays. Decomposing amount as 100q+r keeps the product inside 64
// bits for any amount.
func (p Policy) Amount(amount uint64) uint64 {
	q, r := amount/100, amount%100
	return q*p.percent + r*p.percent/100
}
