package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

const applicationsTable = "sso.applications"

var applicationColumns = []string{
	"id",
	"name",
	"description",
	"channels",
}

// ApplicationRepository reads client-application metadata from PostgreSQL.
// Applications are provisioned out-of-band; no write methods exist here.
type ApplicationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewApplicationRepository wires a PostgreSQL-backed application repository.
func NewApplicationRepository(exec pgExecutor) *ApplicationRepository {
	return &ApplicationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID retrieves an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, applicationID string) (*domain.Application, error) {
	stmt, args, err := r.builder.
		Select(applicationColumns...).
		From(applicationsTable).
		Where(squirrel.Eq{"id": applicationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select application sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	return scanApplication(row)
}

// GetByIDs retrieves several applications at once, used to enrich grant
// listings with display metadata.
func (r *ApplicationRepository) GetByIDs(ctx context.Context, applicationIDs []string) ([]domain.Application, error) {
	if len(applicationIDs) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.
		Select(applicationColumns...).
		From(applicationsTable).
		Where(squirrel.Eq{"id": applicationIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select applications sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}

	return apps, nil
}

func scanApplication(row pgx.Row) (*domain.Application, error) {
	var (
		app          domain.Application
		channelsJSON []byte
	)

	if err := row.Scan(
		&app.ID,
		&app.Name,
		&app.Description,
		&channelsJSON,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &app.Channels); err != nil {
			return nil, fmt.Errorf("decode channels: %w", err)
		}
	}

	return &app, nil
}
