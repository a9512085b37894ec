package waitlist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PostgresStore)(nil)

// DBTX is the subset of pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
	CREATE TABLE IF NOT EXISTS waitlist_signups (
		id         UUID PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		source     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresStore persists signups in the waitlist_signups table.
type PostgresStore struct {
	db     DBTX
	logger *slog.Logger
}

func NewPostgresStore(db DBTX, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the signup table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating waitlist schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Add(ctx context.Context, s Signup) error {
	query := `
		INSERT INTO waitlist_signups (id, email, source, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
	`

	tag, err := p.db.Exec(ctx, query, s.ID.String(), s.Email, s.Source, s.CreatedAt)
	if err != nil {
		p.logger.Error("failed to insert waitlist signup", slog.Any("error", err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, email string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM waitlist_signups WHERE email = $1`, email)
	return err
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM waitlist_signups`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
