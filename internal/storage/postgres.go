package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id             UUID PRIMARY KEY,
	account_id     UUID NOT NULL,
	asset          TEXT NOT NULL,
	entry_type     TEXT NOT NULL,
	amount         NUMERIC(39, 0) NOT NULL CHECK (amount >= 0),
	reference_type TEXT NOT NULL,
	reference_id   TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_reference
	ON ledger_entries (reference_type, reference_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
	ON ledger_entries (account_id, asset);
`

// Store is the append-only postgres journal of committed ledger entries.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordEntries appends all entries of one committed operation in a single
// transaction so the journal never shows a half-recorded trade.
func (s *Store) RecordEntries(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, entry := range entries {
		id := entry.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		createdAt := entry.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries
				(id, account_id, asset, entry_type, amount, reference_type, reference_id, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		`, id, entry.Account, entry.Asset, entry.EntryType, EncodeAmount(entry.Amount), entry.ReferenceType, entry.ReferenceID, createdAt)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	committed = true
	return nil
}

// EntriesByReference returns the journaled entries for one operation, e.g.
// all four movements of a trade.
func (s *Store) EntriesByReference(ctx context.Context, referenceType, referenceID string) ([]LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, asset, entry_type, amount::text, reference_type, reference_id, created_at
		FROM ledger_entries
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY created_at, id
	`, referenceType, referenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var entry LedgerEntry
		var amountStr string
		if err := rows.Scan(&entry.ID, &entry.Account, &entry.Asset, &entry.EntryType, &amountStr, &entry.ReferenceType, &entry.ReferenceID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Amount, err = DecodeAmount(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// EncodeAmount renders a uint64 amount for a NUMERIC column. Amounts can
// exceed BIGINT range, so they travel as decimal strings.
func EncodeAmount(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0).String()
}

func DecodeAmount(value string) (uint64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("amount %q is not an integer", value)
	}
	bi := d.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q outside uint64 range", value)
	}
	return bi.Uint64(), nil
}
