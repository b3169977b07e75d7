package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/repository"
)

// ErrGrantNotFound indicates there is no active grant to operate on.
var ErrGrantNotFound = errors.New("authorization grant not found")

// ApplicationAccess joins an active grant with the application's display
// metadata for user-facing listings.
type ApplicationAccess struct {
	ApplicationID   string
	ApplicationName string
	Description     string
	Scopes          []string
	GrantedAt       time.Time
}

// AuthorizationService tracks which (application, user) pairs are authorized.
type AuthorizationService struct {
	grants       port.GrantRepository
	applications port.ApplicationRepository
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewAuthorizationService constructs an AuthorizationService.
func NewAuthorizationService(grants port.GrantRepository, applications port.ApplicationRepository, events port.EventPublisher, log *zap.Logger) *AuthorizationService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &AuthorizationService{
		grants:       grants,
		applications: applications,
		events:       events,
		logger:       log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthorizationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Check reports whether an active grant exists for the pair.
func (s *AuthorizationService) Check(ctx context.Context, applicationID, userID string) (bool, error) {
	grant, err := s.grants.Get(ctx, applicationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check grant: %w", err)
	}
	return grant.IsActive(), nil
}

// CheckScopes reports whether an active grant covers every required scope,
// and if not, which scopes are missing.
func (s *AuthorizationService) CheckScopes(ctx context.Context, applicationID, userID string, required []string) (bool, []string, error) {
	grant, err := s.grants.Get(ctx, applicationID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, append([]string(nil), required...), nil
		}
		return false, nil, fmt.Errorf("check grant scopes: %w", err)
	}
	if !grant.IsActive() {
		return false, append([]string(nil), required...), nil
	}
	missing := grant.MissingScopes(required)
	return len(missing) == 0, missing, nil
}

// Grant upserts an active grant for the pair, overwriting any prior grant
// including a previously revoked one.
func (s *AuthorizationService) Grant(ctx context.Context, applicationID, userID string, scopes []string) (*domain.Grant, error) {
	if strings.TrimSpace(applicationID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("application id and user id are required")
	}

	grant := domain.Grant{
		ApplicationID: applicationID,
		UserID:        userID,
		Scopes:        append([]string(nil), scopes...),
		Status:        domain.GrantStatusActive,
		GrantedAt:     s.now(),
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, fmt.Errorf("upsert grant: %w", err)
	}

	s.logger.Info("granted application authorization",
		zap.String("application_id", applicationID),
		zap.String("user_id", userID),
		zap.Int("scope_count", len(scopes)),
	)

	return &grant, nil
}

// Revoke tombstones the active grant for the pair and emits a revocation
// event. Revoking an absent or already revoked grant returns ErrGrantNotFound.
func (s *AuthorizationService) Revoke(ctx context.Context, applicationID, userID, revokedBy string) error {
	now := s.now()
	if err := s.grants.Revoke(ctx, applicationID, userID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrGrantNotFound
		}
		return fmt.Errorf("revoke grant: %w", err)
	}

	s.logger.Info("revoked application authorization",
		zap.String("application_id", applicationID),
		zap.String("user_id", userID),
	)

	if s.events != nil {
		event := domain.GrantRevokedEvent{
			EventID:       uuid.NewString(),
			ApplicationID: applicationID,
			UserID:        userID,
			RevokedAt:     now,
			RevokedBy:     revokedBy,
		}
		if err := s.events.PublishGrantRevoked(ctx, event); err != nil {
			s.logger.Warn("failed to publish grant revoked event", zap.Error(err))
		}
	}

	return nil
}

// ListForUser enumerates the applications a user currently authorizes, joined
// with application display metadata. Grants whose application record is gone
// are skipped.
func (s *AuthorizationService) ListForUser(ctx context.Context, userID string) ([]ApplicationAccess, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	grants, err := s.grants.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	if len(grants) == 0 {
		return []ApplicationAccess{}, nil
	}

	ids := make([]string, 0, len(grants))
	for _, grant := range grants {
		ids = append(ids, grant.ApplicationID)
	}
	applications, err := s.applications.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	byID := make(map[string]domain.Application, len(applications))
	for _, app := range applications {
		byID[app.ID] = app
	}

	access := make([]ApplicationAccess, 0, len(grants))
	for _, grant := range grants {
		app, ok := byID[grant.ApplicationID]
		if !ok {
			s.logger.Warn("grant references unknown application",
				zap.String("application_id", grant.ApplicationID),
				zap.String("user_id", userID),
			)
			continue
		}
		access = append(access, ApplicationAccess{
			ApplicationID:   app.ID,
			ApplicationName: app.Name,
			Description:     app.Description,
			Scopes:          grant.Scopes,
			GrantedAt:       grant.GrantedAt,
		})
	}

	return access, nil
}

// RevokeAllForUser tombstones every active grant for the user, returning the
// number revoked. Used by the admin delete-user flow.
func (s *AuthorizationService) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	count, err := s.grants.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("revoke grants: %w", err)
	}
	return count, nil
}
