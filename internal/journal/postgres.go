package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS mopscov_journal (
		id         UUID PRIMARY KEY,
		company_id TEXT NOT NULL,
		year       INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		payload    JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS mopscov_journal_company_idx ON mopscov_journal (company_id, started_at)`,
}

// PostgresStore journals sessions into one table with a jsonb payload
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects and ensures the journal table exists
func NewPostgresStore(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("database url not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create journal table: %w", err)
		}
	}

	logger.Info("journal connected", zap.String("backend", "postgres"))
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Record inserts a session, replacing one with the same id
func (s *PostgresStore) Record(ctx context.Context, session Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO mopscov_journal (id, company_id, year, started_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload`,
		session.ID.String(), session.CompanyID, session.Year, session.StartedAt, payload)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// History returns the company's sessions, oldest first
func (s *PostgresStore) History(ctx context.Context, companyID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payload
		FROM mopscov_journal
		WHERE company_id = $1
		ORDER BY started_at, id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var session Session
		if err := json.Unmarshal(payload, &session); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
