package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quarry-network/quarry/internal/domain"
)

// ─── Fund Ledger ────────────────────────────────────────────────────────────
// Double-entry bookkeeping: Transfer debits one account and credits
// another in the same transaction. Balances are carried on each entry,
// so the current balance of an account is its most recent entry.

// Well-known accounts. The reserve is the mint: it is the only account
// allowed to go negative, which is how deposits enter the economy.
const (
	AccountEscrow  = "escrow"
	AccountReserve = "reserve"
)

// EntryType marks the side of a double-entry pair.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// FundEntry is one side of a recorded transfer.
type FundEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EntryType EntryType `json:"entry_type"`
	Account   string    `json:"account"`
	Amount    int64     `json:"amount"`
	JobID     int64     `json:"job_id,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	Balance   int64     `json:"balance"`
}

// Transfer moves amount from one account to another. The source must
// hold at least amount, except the reserve account. Both entries land
// in the surrounding transaction, so a rolled-back ledger operation
// also rolls back its transfers.
func (t *Tx) Transfer(from, to string, amount int64, jobID int64, memo string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if from == to {
		return fmt.Errorf("transfer source and destination are both %q", from)
	}

	fromBal, err := t.Balance(from)
	if err != nil {
		return fmt.Errorf("balance %s: %w", from, err)
	}
	if from != AccountReserve && fromBal < amount {
		return &domain.InsufficientFundsError{Need: amount, Have: fromBal}
	}
	toBal, err := t.Balance(to)
	if err != nil {
		return fmt.Errorf("balance %s: %w", to, err)
	}

	now := time.Now().UnixMilli()
	if err := t.insertEntry(now, EntryDebit, from, amount, jobID, memo, fromBal-amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := t.insertEntry(now, EntryCredit, to, amount, jobID, memo, toBal+amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// Balance returns the current balance of an account within the transaction.
func (t *Tx) Balance(account string) (int64, error) {
	return balance(t.tx.QueryRow(
		`SELECT balance FROM fund_ledger WHERE account = ? ORDER BY id DESC LIMIT 1`,
		account,
	))
}

func (t *Tx) insertEntry(ts int64, et EntryType, account string, amount, jobID int64, memo string, bal int64) error {
	_, err := t.tx.Exec(
		`INSERT INTO fund_ledger (timestamp, entry_type, account, amount, job_id, memo, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, string(et), account, amount, nullableID(jobID), nullableString(memo), bal,
	)
	return err
}

// ─── Read Side ──────────────────────────────────────────────────────────────

// Balance returns the current balance of an account.
func (d *DB) Balance(account string) (int64, error) {
	return balance(d.db.QueryRow(
		`SELECT balance FROM fund_ledger WHERE account = ? ORDER BY id DESC LIMIT 1`,
		account,
	))
}

// FundEntries returns recent fund ledger entries for an account.
func (d *DB) FundEntries(account string, limit int) ([]FundEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, timestamp, entry_type, account, amount, job_id, memo, balance
		 FROM fund_ledger WHERE account = ? ORDER BY id DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FundEntry
	for rows.Next() {
		var (
			e     FundEntry
			ts    int64
			jobID sql.NullInt64
			memo  sql.NullString
			et    string
		)
		if err := rows.Scan(&e.ID, &ts, &et, &e.Account, &e.Amount, &jobID, &memo, &e.Balance); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		e.EntryType = EntryType(et)
		if jobID.Valid {
			e.JobID = jobID.Int64
		}
		if memo.Valid {
			e.Memo = memo.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func balance(row *sql.Row) (int64, error) {
	var bal sql.NullInt64
	err := row.Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return bal.Int64, nil
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
