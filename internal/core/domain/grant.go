package domain

import "time"

// GrantStatus enumerates authorization grant states.
type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusRevoked GrantStatus = "revoked"
)

// Grant records a user's consent authorizing an application. At most one
// grant exists per (application, user) pair; re-granting overwrites it.
// Revocation tombstones the row rather than deleting it so audit history
// survives.
type Grant struct {
	ApplicationID string
	UserID        string
	Scopes        []string
	Status        GrantStatus
	GrantedAt     time.Time
	RevokedAt     *time.Time
}

// IsActive reports whether the grant currently authorizes the application.
func (g Grant) IsActive() bool {
	return g.Status == GrantStatusActive
}

// MissingScopes returns the required scopes the grant does not cover. An
// empty result means the grant satisfies the requirement.
func (g Grant) MissingScopes(required []string) []string {
	if len(required) == 0 {
		return nil
	}
	granted := make(map[string]struct{}, len(g.Scopes))
	for _, scope := range g.Scopes {
		granted[scope] = struct{}{}
	}
	var missing []string
	for _, scope := range required {
		if _, ok := granted[scope]; !ok {
			missing = append(missing, scope)
		}
	}
	return missing
}
