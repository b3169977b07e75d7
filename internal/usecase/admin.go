package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/repository"
)

// AdminService is a thin passthrough to the identity provider's user
// administration API, plus local cleanup on destructive operations.
type AdminService struct {
	directory port.IdentityAdmin
	users     port.UserRepository
	sessions  *SessionService
	authz     *AuthorizationService
	logger    *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(directory port.IdentityAdmin, users port.UserRepository, sessions *SessionService, authz *AuthorizationService, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{
		directory: directory,
		users:     users,
		sessions:  sessions,
		authz:     authz,
		logger:    log,
	}
}

// ListUsers pages through the provider directory.
func (s *AdminService) ListUsers(ctx context.Context, limit int32, paginationToken, filter string) ([]port.DirectoryUser, string, error) {
	if limit <= 0 || limit > 60 {
		limit = 60
	}
	users, next, err := s.directory.ListUsers(ctx, limit, paginationToken, filter)
	if err != nil {
		return nil, "", fmt.Errorf("list directory users: %w", err)
	}
	return users, next, nil
}

// GetUser fetches one directory user by username.
func (s *AdminService) GetUser(ctx context.Context, username string) (*port.DirectoryUser, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("username is required")
	}
	user, err := s.directory.GetUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get directory user: %w", err)
	}
	return user, nil
}

// UpdateUserAttributes sets directory attributes for the user.
func (s *AdminService) UpdateUserAttributes(ctx context.Context, username string, attributes map[string]string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	if len(attributes) == 0 {
		return fmt.Errorf("no attributes to update")
	}
	if err := s.directory.UpdateUserAttributes(ctx, username, attributes); err != nil {
		return fmt.Errorf("update directory attributes: %w", err)
	}
	return nil
}

// ForcePasswordReset forces the user through a password reset on next login.
func (s *AdminService) ForcePasswordReset(ctx context.Context, username string) error {
	if err := s.directory.ForcePasswordReset(ctx, username); err != nil {
		return fmt.Errorf("force password reset: %w", err)
	}
	return nil
}

// DeactivateUser disables the directory account and revokes the user's broker
// sessions so access ends immediately rather than at session expiry.
func (s *AdminService) DeactivateUser(ctx context.Context, username, adminID string) error {
	if err := s.directory.DeactivateUser(ctx, username); err != nil {
		return fmt.Errorf("deactivate directory user: %w", err)
	}
	s.revokeLocalAccess(ctx, username, adminID, false)
	return nil
}

// ActivateUser re-enables the directory account.
func (s *AdminService) ActivateUser(ctx context.Context, username string) error {
	if err := s.directory.ActivateUser(ctx, username); err != nil {
		return fmt.Errorf("activate directory user: %w", err)
	}
	return nil
}

// DeleteUser removes the directory account, then revokes local sessions and
// grants and deletes the local user record. Local cleanup is best effort;
// failures are logged, not surfaced, since the provider-side delete already
// succeeded.
func (s *AdminService) DeleteUser(ctx context.Context, username, adminID string) error {
	if err := s.directory.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("delete directory user: %w", err)
	}
	s.revokeLocalAccess(ctx, username, adminID, true)
	return nil
}

// revokeLocalAccess tears down the local footprint of a directory user. The
// directory username is the provider subject for broker-provisioned users.
func (s *AdminService) revokeLocalAccess(ctx context.Context, username, adminID string, deleteRecord bool) {
	user, err := s.users.GetBySubject(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to resolve local user for cleanup",
				zap.String("username", username),
				zap.Error(err),
			)
		}
		return
	}

	if count, err := s.sessions.RevokeAllForUser(ctx, user.ID, ""); err != nil {
		s.logger.Warn("failed to revoke sessions during admin cleanup",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	} else if count > 0 {
		s.logger.Info("revoked sessions during admin cleanup",
			zap.String("user_id", user.ID),
			zap.Int("count", count),
			zap.String("admin_id", adminID),
		)
	}

	if _, err := s.authz.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke grants during admin cleanup",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	if deleteRecord {
		if err := s.users.Delete(ctx, user.ID); err != nil {
			s.logger.Warn("failed to delete local user record",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}
}
