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
	"github.com/arklim/sso-broker/internal/infra/logger"
	"github.com/arklim/sso-broker/internal/repository"
)

// ErrUserNotFound indicates that no internal user record matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// IdentityService maps identity-provider subjects onto internal user records,
// creating them just-in-time on first sign-in.
type IdentityService struct {
	users  port.UserRepository
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(users port.UserRepository, events port.EventPublisher, log *zap.Logger) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &IdentityService{
		users:  users,
		events: events,
		logger: log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *IdentityService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ResolveOrCreate finds the user record behind the verified claims. Primary
// lookup is by subject. If the subject is unknown but the email matches an
// existing user, the stored subject is rewritten in place, which heals
// provider-side subject rotation. Otherwise a fresh user is created from the
// claims.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, claims *domain.Claims) (*domain.User, error) {
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("claims subject is required")
	}

	user, err := s.users.GetBySubject(ctx, claims.Subject)
	if err == nil {
		if s.linkProvider(user, claims) {
			if updateErr := s.users.Update(ctx, *user); updateErr != nil {
				return nil, fmt.Errorf("persist provider link: %w", updateErr)
			}
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by subject: %w", err)
	}

	if claims.Email != "" {
		user, err = s.users.GetByEmail(ctx, claims.Email)
		if err == nil {
			return s.reconcileSubject(ctx, user, claims)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	return s.createUser(ctx, claims)
}

// GetByID fetches a user record by internal id.
func (s *IdentityService) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *IdentityService) reconcileSubject(ctx context.Context, user *domain.User, claims *domain.Claims) (*domain.User, error) {
	oldSubject := user.ExternalSubject
	user.ExternalSubject = claims.Subject
	s.linkProvider(user, claims)

	if err := s.users.Update(ctx, *user); err != nil {
		return nil, fmt.Errorf("rewrite user subject: %w", err)
	}

	s.logger.Info("reconciled user subject",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	if s.events != nil {
		event := domain.UserReconciledEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			OldSubject:   oldSubject,
			NewSubject:   claims.Subject,
			Provider:     claims.Provider,
			ReconciledAt: s.now(),
		}
		if err := s.events.PublishUserReconciled(ctx, event); err != nil {
			s.logger.Warn("failed to publish user reconciled event", zap.Error(err))
		}
	}

	return user, nil
}

func (s *IdentityService) createUser(ctx context.Context, claims *domain.Claims) (*domain.User, error) {
	now := s.now()
	user := domain.User{
		ID:              "user-" + uuid.NewString(),
		ExternalSubject: claims.Subject,
		Email:           claims.Email,
		DisplayName:     claims.Name,
		CreatedAt:       now,
	}
	if claims.PhoneNumber != "" {
		phone := claims.PhoneNumber
		user.PhoneNumber = &phone
	}
	if len(claims.Profile) > 0 {
		user.ProfileAttributes = make(map[string]string, len(claims.Profile))
		for key, value := range claims.Profile {
			user.ProfileAttributes[key] = value
		}
	}
	s.linkProvider(&user, claims)

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("created user just in time",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
	)

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:         uuid.NewString(),
			UserID:          user.ID,
			ExternalSubject: user.ExternalSubject,
			Email:           user.Email,
			RegisteredAt:    now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("failed to publish user registered event", zap.Error(err))
		}
	}

	return &user, nil
}

func (s *IdentityService) linkProvider(user *domain.User, claims *domain.Claims) bool {
	if claims.Provider == "" || claims.ProviderUserID == "" {
		return false
	}
	return user.LinkProvider(claims.Provider, claims.ProviderUserID, s.now())
}
