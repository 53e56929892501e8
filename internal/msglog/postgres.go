package msglog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time assertion that PostgresStore satisfies Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists messages durably in a messages table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool for dsn, ensures the schema, and
// returns a store. The caller owns Close.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("msglog: connect postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool without touching the schema.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS messages (
		    id         BIGSERIAL PRIMARY KEY,
		    role       TEXT        NOT NULL,
		    text       TEXT        NOT NULL,
		    created_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("msglog: ensure schema: %w", err)
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, msg Message) error {
	const q = `
		INSERT INTO messages (role, text, created_at)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, q, string(msg.Role), msg.Text, msg.Time)
	if err != nil {
		return fmt.Errorf("msglog: append: %w", err)
	}
	return nil
}

// Recent implements Store. It returns up to limit messages ordered
// chronologically (oldest first).
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Message, error) {
	const q = `
		SELECT role, text, created_at
		FROM   (SELECT id, role, text, created_at
		        FROM   messages
		        ORDER  BY id DESC
		        LIMIT  $1) latest
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("msglog: recent: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var (
			m    Message
			role string
		)
		if err := row.Scan(&role, &m.Text, &m.Time); err != nil {
			return Message{}, err
		}
		m.Role = Role(role)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("msglog: scan rows: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}
