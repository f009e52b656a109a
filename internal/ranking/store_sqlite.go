package ranking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"chainarena/internal/core"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the participants table if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			rating REAL NOT NULL DEFAULT 1200,
			price REAL NOT NULL DEFAULT 0,
			contract_address TEXT NOT NULL DEFAULT '',
			payout_wallet TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (kind, name)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create participants table: %w", err)
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_participants_rating ON participants(kind, rating DESC)"); err != nil {
		slog.Warn("failed to create index", "error", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Count(ctx context.Context, kind core.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM participants WHERE kind = ?", string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s participants: %w", kind, err)
	}
	return n, nil
}

func (s *SQLiteStore) InsertMissing(ctx context.Context, participants []core.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range participants {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO participants (kind, name, rating, price, contract_address, payout_wallet)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (kind, name) DO NOTHING
		`, string(p.Kind), p.Name, p.Rating, p.Price, p.ContractAddress, p.PayoutWallet)
		if err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", p.Kind, p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error) {
	p := core.Participant{Kind: kind}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, rating, price, contract_address, payout_wallet
		FROM participants WHERE kind = ? AND name = ?
	`, string(kind), name).Scan(&p.Name, &p.Rating, &p.Price, &p.ContractAddress, &p.PayoutWallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewParticipantNotFoundError(kind, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, name, err)
	}
	return &p, nil
}

func (s *SQLiteStore) List(ctx context.Context, kind core.Kind) ([]core.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, rating, price, contract_address, payout_wallet
		FROM participants WHERE kind = ?
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s participants: %w", kind, err)
	}
	defer rows.Close()

	var out []core.Participant
	for rows.Next() {
		p := core.Participant{Kind: kind}
		if err := rows.Scan(&p.Name, &p.Rating, &p.Price, &p.ContractAddress, &p.PayoutWallet); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePair runs inside a BEGIN IMMEDIATE transaction, so the reads already
// hold the database write lock.
func (s *SQLiteStore) UpdatePair(ctx context.Context, kind core.Kind, left, right string, fn RatingFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	read := func(name string) (float64, error) {
		var rating float64
		err := tx.QueryRowContext(ctx,
			"SELECT rating FROM participants WHERE kind = ? AND name = ?", string(kind), name).Scan(&rating)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.NewParticipantNotFoundError(kind, name)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read rating for %s: %w", name, err)
		}
		return rating, nil
	}

	rl, err := read(left)
	if err != nil {
		return err
	}
	rr, err := read(right)
	if err != nil {
		return err
	}

	nl, nr := fn(rl, rr)
	for _, u := range []struct {
		name   string
		rating float64
	}{{left, nl}, {right, nr}} {
		if _, err := tx.ExecContext(ctx,
			"UPDATE participants SET rating = ? WHERE kind = ? AND name = ?", u.rating, string(kind), u.name); err != nil {
			return fmt.Errorf("failed to update rating for %s: %w", u.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
