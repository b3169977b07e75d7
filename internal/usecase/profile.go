package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/repository"
)

// ProfileService pushes attribute updates through to the identity provider
// with the user's own access token and mirrors them on the local user record.
type ProfileService struct {
	profiles port.ProfileManager
	users    port.UserRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(profiles port.ProfileManager, users port.UserRepository, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &ProfileService{
		profiles: profiles,
		users:    users,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// Update applies the attribute changes at the provider first; only on
// success is the local record updated, so the provider stays the source of
// truth for profile data.
func (s *ProfileService) Update(ctx context.Context, userID, accessToken string, attributes map[string]string) error {
	if strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("access token is required")
	}
	if len(attributes) == 0 {
		return fmt.Errorf("no attributes to update")
	}

	if err := s.profiles.UpdateProfile(ctx, accessToken, attributes); err != nil {
		return fmt.Errorf("update provider profile: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}

	changed := false
	for key, value := range attributes {
		switch key {
		case "name":
			if user.DisplayName != value {
				user.DisplayName = value
				changed = true
			}
		case "phone_number":
			if user.PhoneNumber == nil || *user.PhoneNumber != value {
				phone := value
				user.PhoneNumber = &phone
				changed = true
			}
		default:
			if user.ProfileAttributes == nil {
				user.ProfileAttributes = make(map[string]string)
			}
			if user.ProfileAttributes[key] != value {
				user.ProfileAttributes[key] = value
				changed = true
			}
		}
	}

	if !changed {
		return nil
	}
	if err := s.users.Update(ctx, *user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("updated user profile", zap.String("user_id", userID))

	return nil
}
