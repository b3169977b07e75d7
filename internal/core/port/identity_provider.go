package port

import (
	"context"
	"errors"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// ErrDirectoryUserNotFound indicates the provider directory has no record
// for the requested username.
var ErrDirectoryUserNotFound = errors.New("directory user not found")

// TokenVerifier validates identity tokens against the provider's published
// signing keys and extracts normalized claims. Implementations collapse every
// verification failure into a single opaque error so callers cannot
// distinguish sub-reasons.
type TokenVerifier interface {
	Verify(ctx context.Context, identityToken string) (*domain.Claims, error)
}

// IdentityProvider covers the upstream token operations the broker relies on.
// Token issuance itself happens out-of-band through the provider's redirect
// flow.
type IdentityProvider interface {
	// Refresh exchanges a refresh token for fresh tokens. Providers do not
	// always rotate refresh tokens; the returned set may omit one.
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error)
}

// DirectoryUser is a provider-side user record surfaced to the admin API.
type DirectoryUser struct {
	Username   string
	Status     string
	Enabled    bool
	CreatedAt  string
	Attributes map[string]string
}

// IdentityAdmin exposes the provider's administrative user lifecycle
// operations. The broker is a thin passthrough for these.
type IdentityAdmin interface {
	ListUsers(ctx context.Context, limit int32, paginationToken, filter string) ([]DirectoryUser, string, error)
	GetUser(ctx context.Context, username string) (*DirectoryUser, error)
	UpdateUserAttributes(ctx context.Context, username string, attributes map[string]string) error
	ForcePasswordReset(ctx context.Context, username string) error
	DeactivateUser(ctx context.Context, username string) error
	ActivateUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

// ProfileManager updates provider-side user attributes through the user's own
// access token.
type ProfileManager interface {
	UpdateProfile(ctx context.Context, accessToken string, attributes map[string]string) error
	GetProfile(ctx context.Context, accessToken string) (map[string]string, error)
}
