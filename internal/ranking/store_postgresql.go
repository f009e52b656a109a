package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainarena/internal/core"
)

// PostgreSQLStore implements Store for PostgreSQL databases.
type PostgreSQLStore struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLStore creates the participants table if it doesn't exist.
func NewPostgreSQLStore(ctx context.Context, pool *pgxpool.Pool) (*PostgreSQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS participants (
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			rating DOUBLE PRECISION NOT NULL DEFAULT 1200,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			contract_address TEXT NOT NULL DEFAULT '',
			payout_wallet TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (kind, name)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create participants table: %w", err)
	}

	if _, err := pool.Exec(ctx, "CREATE INDEX IF NOT EXISTS idx_participants_rating ON participants(kind, rating DESC)"); err != nil {
		slog.Warn("failed to create index", "error", err)
	}

	return &PostgreSQLStore{pool: pool}, nil
}

func (s *PostgreSQLStore) Count(ctx context.Context, kind core.Kind) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM participants WHERE kind = $1", string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s participants: %w", kind, err)
	}
	return n, nil
}

func (s *PostgreSQLStore) InsertMissing(ctx context.Context, participants []core.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(`
			INSERT INTO participants (kind, name, rating, price, contract_address, payout_wallet)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (kind, name) DO NOTHING
		`, string(p.Kind), p.Name, p.Rating, p.Price, p.ContractAddress, p.PayoutWallet)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert participants: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error) {
	p := core.Participant{Kind: kind}
	err := s.pool.QueryRow(ctx, `
		SELECT name, rating, price, contract_address, payout_wallet
		FROM participants WHERE kind = $1 AND name = $2
	`, string(kind), name).Scan(&p.Name, &p.Rating, &p.Price, &p.ContractAddress, &p.PayoutWallet)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NewParticipantNotFoundError(kind, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, name, err)
	}
	return &p, nil
}

func (s *PostgreSQLStore) List(ctx context.Context, kind core.Kind) ([]core.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, rating, price, contract_address, payout_wallet
		FROM participants WHERE kind = $1
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

// UpdatePair locks both rows with SELECT ... FOR UPDATE in name order so two
// votes over the same pair cannot deadlock.
func (s *PostgreSQLStore) UpdatePair(ctx context.Context, kind core.Kind, left, right string, fn RatingFunc) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		SELECT name, rating FROM participants
		WHERE kind = $1 AND name = ANY($2)
		ORDER BY name
		FOR UPDATE
	`, string(kind), []string{left, right})
	if err != nil {
		return fmt.Errorf("failed to lock ratings: %w", err)
	}
	ratings := make(map[string]float64, 2)
	for rows.Next() {
		var name string
		var rating float64
		if err := rows.Scan(&name, &rating); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings[name] = rating
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read ratings: %w", err)
	}

	rl, ok := ratings[left]
	if !ok {
		return core.NewParticipantNotFoundError(kind, left)
	}
	rr, ok := ratings[right]
	if !ok {
		return core.NewParticipantNotFoundError(kind, right)
	}

	nl, nr := fn(rl, rr)
	if _, err := tx.Exec(ctx, `
		UPDATE participants SET rating = CASE name WHEN $2 THEN $3::double precision ELSE $4::double precision END
		WHERE kind = $1 AND name IN ($2, $5)
	`, string(kind), left, nl, nr, right); err != nil {
		return fmt.Errorf("failed to update ratings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
