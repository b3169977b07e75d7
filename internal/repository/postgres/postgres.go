package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor abstracts pgxpool.Pool, pgx.Tx, and pgxmock pools for tests.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the postgres-backed repositories sharing one pool.
type Repositories struct {
	Users        *UserRepository
	Grants       *GrantRepository
	Applications *ApplicationRepository
}

// NewRepositories wires all repositories on top of the supplied pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(pool),
		Grants:       NewGrantRepository(pool),
		Applications: NewApplicationRepository(pool),
	}
}
