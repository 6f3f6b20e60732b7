package treasury

import (
	"database/sql"
	"fmt"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// PostgresTreasury implements Treasury backed by PostgreSQL.
// Uses SELECT FOR UPDATE for row-level locking: the row lock on the
// debited account prevents concurrent double-spends of the same balance.
type PostgresTreasury struct {
	db *sql.DB
}

// NewPostgresTreasury creates a PostgreSQL-backed treasury. The
// treasury_accounts table (account TEXT PRIMARY KEY, balance BIGINT) and
// treasury_transfers journal are expected to exist.
func NewPostgresTreasury(db *sql.DB) *PostgresTreasury {
	return &PostgresTreasury{db: db}
}

// Transfer atomically debits from and credits to inside one transaction.
func (t *PostgresTreasury) Transfer(amount uint64, from, to contracts.Principal) error {
	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A missing row is a zero balance, matching the in-memory book: a
	// zero-amount transfer from an unfunded account still succeeds and
	// journals.
	var balance int64
	err = tx.QueryRow(
		`SELECT balance FROM treasury_accounts WHERE account = $1 FOR UPDATE`,
		string(from),
	).Scan(&balance)
	if err != nil {
		if err != sql.ErrNoRows {
			return fmt.Errorf("account lock failed: %w", err)
		}
		balance = 0
	}

	if balance < 0 || uint64(balance) < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientFunds)
	}

	_, err = tx.Exec(
		`UPDATE treasury_accounts SET balance = balance - $1 WHERE account = $2`,
		int64(amount), string(from),
	)
	if err != nil {
		return fmt.Errorf("debit failed: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO treasury_accounts (account, balance) VALUES ($1, $2)
		 ON CONFLICT (account) DO UPDATE SET balance = treasury_accounts.balance + $2`,
		string(to), int64(amount),
	)
	if err != nil {
		return fmt.Errorf("credit failed: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO treasury_transfers (amount, from_account, to_account) VALUES ($1, $2, $3)`,
		int64(amount), string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("journal insert failed: %w", err)
	}

	return tx.Commit()
}
