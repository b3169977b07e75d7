package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

const grantsTable = "sso.grants"

var grantColumns = []string{
	"application_id",
	"user_id",
	"scopes",
	"status",
	"granted_at",
	"revoked_at",
}

// GrantRepository implements port.GrantRepository using PostgreSQL. One row
// per (application_id, user_id); the pair is the primary key.
type GrantRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewGrantRepository wires a PostgreSQL-backed grant repository.
func NewGrantRepository(exec pgExecutor) *GrantRepository {
	return &GrantRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Upsert overwrites any existing grant for the pair, including a previously
// revoked tombstone, with a fresh active grant.
func (r *GrantRepository) Upsert(ctx context.Context, grant domain.Grant) error {
	scopes := grant.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	stmt, args, err := r.builder.Insert(grantsTable).
		Columns(grantColumns...).
		Values(
			grant.ApplicationID,
			grant.UserID,
			scopes,
			grant.Status,
			grant.GrantedAt,
			grant.RevokedAt,
		).
		Suffix(`ON CONFLICT (application_id, user_id) DO UPDATE
			SET scopes = EXCLUDED.scopes,
			    status = EXCLUDED.status,
			    granted_at = EXCLUDED.granted_at,
			    revoked_at = EXCLUDED.revoked_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert grant sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}

	return nil
}

// Get retrieves the grant for the pair, active or tombstoned.
func (r *GrantRepository) Get(ctx context.Context, applicationID, userID string) (*domain.Grant, error) {
	stmt, args, err := r.builder.
		Select(grantColumns...).
		From(grantsTable).
		Where(squirrel.Eq{"application_id": applicationID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select grant sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	return scanGrant(row)
}

// Revoke tombstones the active grant. The row survives for audit history.
func (r *GrantRepository) Revoke(ctx context.Context, applicationID, userID string, at time.Time) error {
	stmt, args, err := r.builder.Update(grantsTable).
		Set("status", domain.GrantStatusRevoked).
		Set("revoked_at", at).
		Where(squirrel.Eq{
			"application_id": applicationID,
			"user_id":        userID,
			"status":         domain.GrantStatusActive,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke grant sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("revoke grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListActiveByUser enumerates the user's active grants.
func (r *GrantRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.Grant, error) {
	stmt, args, err := r.builder.
		Select(grantColumns...).
		From(grantsTable).
		Where(squirrel.Eq{"user_id": userID, "status": domain.GrantStatusActive}).
		OrderBy("granted_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list grants sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}

// RevokeAllForUser tombstones every active grant the user holds, returning
// the number revoked.
func (r *GrantRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update(grantsTable).
		Set("status", domain.GrantStatusRevoked).
		Set("revoked_at", at).
		Where(squirrel.Eq{"user_id": userID, "status": domain.GrantStatusActive}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke all grants sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke all grants: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func scanGrant(row pgx.Row) (*domain.Grant, error) {
	var (
		grant     domain.Grant
		revokedAt *time.Time
	)

	if err := row.Scan(
		&grant.ApplicationID,
		&grant.UserID,
		&grant.Scopes,
		&grant.Status,
		&grant.GrantedAt,
		&revokedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan grant: %w", err)
	}

	grant.RevokedAt = revokedAt
	return &grant, nil
}
