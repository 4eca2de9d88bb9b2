package storage

import (
	"time"

	"github.com/google/uuid"
)

const (
	EntryTypeCredit = "credit"
	EntryTypeDebit  = "debit"

	ReferenceTypeDeposit    = "deposit"
	ReferenceTypeWithdrawal = "withdrawal"
	ReferenceTypeTrade      = "trade"
)

// LedgerEntry is one side of a committed balance movement, journaled for
// audit and reconciliation. The in-memory ledger stays authoritative; rows
// here are append-only history.
type LedgerEntry struct {
	ID            uuid.UUID
	Account       uuid.UUID
	Asset         string
	EntryType     string
	Amount        uint64
	ReferenceType string
	ReferenceID   string
	CreatedAt     time.Time
}
