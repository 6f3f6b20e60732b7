// Package store persists the pipeline's durable records: verifications,
// proofs, and claims. The in-memory components stay authoritative for
// gating decisions; the store is the audit surface behind the read API
// and survives restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"

	_ "modernc.org/sqlite"
)

type SQLitePipelineStore struct {
	db *sql.DB
}

func NewSQLitePipelineStore(db *sql.DB) (*SQLitePipelineStore, error) {
	s := &SQLitePipelineStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLitePipelineStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS verifications (
        user TEXT NOT NULL,
        period_start INTEGER NOT NULL,
        period_end INTEGER NOT NULL,
        score INTEGER NOT NULL,
        status INTEGER NOT NULL,
        height INTEGER NOT NULL,
        PRIMARY KEY (user, period_start, period_end)
    );
    CREATE TABLE IF NOT EXISTS proofs (
        proof_id INTEGER PRIMARY KEY,
        user TEXT NOT NULL,
        period_start INTEGER NOT NULL,
        period_end INTEGER NOT NULL,
        score INTEGER NOT NULL,
        proof_hash BLOB NOT NULL,
        issued_at INTEGER NOT NULL,
        expiry INTEGER NOT NULL,
        status INTEGER NOT NULL,
        plan_id INTEGER NOT NULL
    );
    CREATE TABLE IF NOT EXISTS claims (
        claim_id INTEGER PRIMARY KEY,
        user TEXT NOT NULL,
        proof_id INTEGER NOT NULL,
        insurer TEXT NOT NULL,
        discount_amount INTEGER NOT NULL,
        status TEXT NOT NULL,
        submitted_at INTEGER NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// PutVerification records a verification outcome. Upsert: re-running a
// period replay overwrites the prior row rather than failing.
func (s *SQLitePipelineStore) PutVerification(ctx context.Context, user contracts.Principal, periodStart, periodEnd uint64, v contracts.Verification) error {
	query := `INSERT INTO verifications (user, period_start, period_end, score, status, height)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (user, period_start, period_end) DO UPDATE SET
            score = excluded.score, status = excluded.status, height = excluded.height`
	_, err := s.db.ExecContext(ctx, query, string(user), periodStart, periodEnd, v.Score, v.Status, v.Timestamp)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

// GetVerification returns the stored verification for (user, period).
// (nil, nil) when absent.
func (s *SQLitePipelineStore) GetVerification(ctx context.Context, user contracts.Principal, periodStart, periodEnd uint64) (*contracts.Verification, error) {
	query := `SELECT score, status, height FROM verifications
        WHERE user = ? AND period_start = ? AND period_end = ?`
	var v contracts.Verification
	err := s.db.QueryRowContext(ctx, query, string(user), periodStart, periodEnd).
		Scan(&v.Score, &v.Status, &v.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVerifications returns a user's verifications, most recent period
// first.
func (s *SQLitePipelineStore) ListVerifications(ctx context.Context, user contracts.Principal, limit int) ([]contracts.Verification, error) {
	query := `SELECT score, status, height FROM verifications
        WHERE user = ? ORDER BY period_end DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, string(user), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Verification
	for rows.Next() {
		var v contracts.Verification
		if err := rows.Scan(&v.Score, &v.Status, &v.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// PutProof records a minted proof.
func (s *SQLitePipelineStore) PutProof(ctx context.Context, proofID uint64, p contracts.Proof) error {
	query := `INSERT INTO proofs (proof_id, user, period_start, period_end, score, proof_hash, issued_at, expiry, status, plan_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		proofID, string(p.User), p.PeriodStart, p.PeriodEnd, p.Score, p.ProofHash, p.IssuedAt, p.Expiry, p.Status, p.PlanID)
	if err != nil {
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

// SetProofStatus flips the stored revocation flag for a proof.
func (s *SQLitePipelineStore) SetProofStatus(ctx context.Context, proofID uint64, status bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE proofs SET status = ? WHERE proof_id = ?`, status, proofID)
	if err != nil {
		return fmt.Errorf("update proof status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("proof %d not found", proofID)
	}
	return nil
}

// GetProof returns the stored proof for an id. (nil, nil) when absent.
func (s *SQLitePipelineStore) GetProof(ctx context.Context, proofID uint64) (*contracts.Proof, error) {
	query := `SELECT user, period_start, period_end, score, proof_hash, issued_at, expiry, status, plan_id
        FROM proofs WHERE proof_id = ?`
	var (
		p    contracts.Proof
		user string
	)
	err := s.db.QueryRowContext(ctx, query, proofID).
		Scan(&user, &p.PeriodStart, &p.PeriodEnd, &p.Score, &p.ProofHash, &p.IssuedAt, &p.Expiry, &p.Status, &p.PlanID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.User = contracts.Principal(user)
	return &p, nil
}

// PutClaim records a submitted claim.
func (s *SQLitePipelineStore) PutClaim(ctx context.Context, claimID uint64, c contracts.Claim) error {
	query := `INSERT INTO claims (claim_id, user, proof_id, insurer, discount_amount, status, submitted_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		claimID, string(c.User), c.ProofID, string(c.Insurer), c.DiscountAmount, string(c.Status), c.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// SetClaimStatus records a settlement outcome.
func (s *SQLitePipelineStore) SetClaimStatus(ctx context.Context, claimID uint64, status contracts.ClaimStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE claims SET status = ? WHERE claim_id = ?`, string(status), claimID)
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("claim %d not found", claimID)
	}
	return nil
}

// GetClaim returns the stored claim for an id. (nil, nil) when absent.
func (s *SQLitePipelineStore) GetClaim(ctx context.Context, claimID uint64) (*contracts.Claim, error) {
	query := `SELECT user, proof_id, insurer, discount_amount, status, submitted_at
        FROM claims WHERE claim_id = ?`
	var (
		c             contracts.Claim
		user, insurer string
		status        string
	)
	err := s.db.QueryRowContext(ctx, query, claimID).
		Scan(&user, &c.ProofID, &insurer, &c.DiscountAmount, &status, &c.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.User = contracts.Principal(user)
	c.Insurer = contracts.Principal(insurer)
	c.Status = contracts.ClaimStatus(status)
	return &c, nil
}

// ListClaimsByInsurer returns claims routed to an insurer, newest first.
func (s *SQLitePipelineStore) ListClaimsByInsurer(ctx context.Context, insurer contracts.Principal, limit int) ([]contracts.Claim, error) {
	query := `SELECT user, proof_id, insurer, discount_amount, status, submitted_at
        FROM claims WHERE insurer = ? ORDER BY claim_id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, string(insurer), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Claim
	for rows.Next() {
		var (
			c             contracts.Claim
			user, insName string
			status        string
		)
		if err := rows.Scan(&user, &c.ProofID, &insName, &c.DiscountAmount, &status, &c.SubmittedAt); err != nil {
			return nil, err
		}
		c.User = contracts.Principal(user)
		c.Insurer = contracts.Principal(insName)
		c.Status = contracts.ClaimStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
