package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteLogStore is a LogStore backed by sqlite, for deployments where
// the logging collaborator writes durable daily logs.
type SQLiteLogStore struct {
	db *sql.DB
}

// NewSQLiteLogStore creates the store and runs its migration.
func NewSQLiteLogStore(db *sql.DB) (*SQLiteLogStore, error) {
	s := &SQLiteLogStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteLogStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS daily_logs (
		user TEXT NOT NULL,
		height INTEGER NOT NULL,
		hash BLOB,
		calories INTEGER NOT NULL,
		nutrients JSON,
		PRIMARY KEY (user, height)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// PutLog upserts the log for (user, height).
func (s *SQLiteLogStore) PutLog(user contracts.Principal, height uint64, log contracts.DailyLog) error {
	nutrients, err := json.Marshal(log.Nutrients)
	if err != nil {
		return fmt.Errorf("marshal nutrients: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO daily_logs (user, height, hash, calories, nutrients)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user, height) DO UPDATE SET
		   hash = excluded.hash, calories = excluded.calories, nutrients = excluded.nutrients`,
		string(user), int64(height), log.Hash, int64(log.Calories), string(nutrients),
	)
	if err != nil {
		return fmt.Errorf("put daily log: %w", err)
	}
	return nil
}

// Log returns the log for (user, height), or (nil, nil) when absent.
func (s *SQLiteLogStore) Log(user contracts.Principal, height uint64) (*contracts.DailyLog, error) {
	var (
		hash      []byte
		calories  int64
		nutrients string
	)
	err := s.db.QueryRow(
		`SELECT hash, calories, nutrients FROM daily_logs WHERE user = ? AND height = ?`,
		string(user), int64(height),
	).Scan(&hash, &calories, &nutrients)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily log: %w", err)
	}

	log := contracts.DailyLog{Hash: hash, Calories: uint64(calories)}
	if nutrients != "" {
		if err := json.Unmarshal([]byte(nutrients), &log.Nutrients); err != nil {
			return nil, fmt.Errorf("unmarshal nutrients: %w", err)
		}
	}
	return &log, nil
}
