package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

const usersTable = "sso.users"

var userColumns = []string{
	"id",
	"external_subject",
	"email",
	"phone_number",
	"display_name",
	"profile_attributes",
	"linked_providers",
	"created_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	profileJSON, linkedJSON, err := marshalUserMaps(user)
	if err != nil {
		return err
	}

	var phoneValue any
	if user.PhoneNumber != nil && *user.PhoneNumber != "" {
		phoneValue = *user.PhoneNumber
	}

	query := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID,
			user.ExternalSubject,
			user.Email,
			phoneValue,
			user.DisplayName,
			profileJSON,
			linkedJSON,
			user.CreatedAt,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by internal identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetBySubject retrieves a user by the provider's subject identifier.
func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"external_subject": subject})
}

// GetByEmail retrieves a user by email, the fallback reconciliation anchor.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": email})
}

// Update persists reconciled user state (subject rewrite, provider links,
// profile attribute changes).
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	profileJSON, linkedJSON, err := marshalUserMaps(user)
	if err != nil {
		return err
	}

	var phoneValue any
	if user.PhoneNumber != nil && *user.PhoneNumber != "" {
		phoneValue = *user.PhoneNumber
	}

	stmt, args, err := r.builder.Update(usersTable).
		Set("external_subject", user.ExternalSubject).
		Set("email", user.Email).
		Set("phone_number", phoneValue).
		Set("display_name", user.DisplayName).
		Set("profile_attributes", profileJSON).
		Set("linked_providers", linkedJSON).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a user row. Only reachable through explicit admin action.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(usersTable).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		phone       sql.NullString
		profileJSON []byte
		linkedJSON  []byte
	)

	if err := row.Scan(
		&user.ID,
		&user.ExternalSubject,
		&user.Email,
		&phone,
		&user.DisplayName,
		&profileJSON,
		&linkedJSON,
		&user.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if phone.Valid {
		val := phone.String
		user.PhoneNumber = &val
	}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &user.ProfileAttributes); err != nil {
			return nil, fmt.Errorf("decode profile attributes: %w", err)
		}
	}
	if len(linkedJSON) > 0 {
		if err := json.Unmarshal(linkedJSON, &user.LinkedProviders); err != nil {
			return nil, fmt.Errorf("decode linked providers: %w", err)
		}
	}

	return &user, nil
}

func marshalUserMaps(user domain.User) ([]byte, []byte, error) {
	profileJSON, err := json.Marshal(user.ProfileAttributes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode profile attributes: %w", err)
	}
	linkedJSON, err := json.Marshal(user.LinkedProviders)
	if err != nil {
		return nil, nil, fmt.Errorf("encode linked providers: %w", err)
	}
	return profileJSON, linkedJSON, nil
}
