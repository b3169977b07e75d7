package domain

import "time"

// Session is an opaque server-side handle binding a user, an application, and
// a provider-issued token set. The session hard-expires at ExpiresAt no matter
// how many token refreshes happened inside that window.
type Session struct {
	ID            string
	UserID        string
	ApplicationID string
	Tokens        TokenSet
	CreatedAt     time.Time
	ExpiresAt     time.Time

	// AccessTokenExpiresAt tracks the wrapped access token's own lifetime,
	// independently of the session window, so reads can refresh it lazily.
	AccessTokenExpiresAt time.Time

	// UserAgent is the only device metadata retained; IP addresses are
	// deliberately not stored.
	UserAgent *string
}

// IsExpired reports whether the session window has passed at the supplied moment.
func (s Session) IsExpired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// NeedsRefresh reports whether the wrapped access token is inside the refresh
// horizon at the supplied moment.
func (s Session) NeedsRefresh(at time.Time, horizon time.Duration) bool {
	if s.AccessTokenExpiresAt.IsZero() {
		return false
	}
	return !s.AccessTokenExpiresAt.After(at.Add(horizon))
}

// ApplyRefresh replaces the wrapped tokens after a successful provider
// exchange. Providers do not always rotate refresh tokens, so the existing one
// is kept when the exchange returned none. The session's own ExpiresAt is
// never touched.
func (s *Session) ApplyRefresh(fresh TokenSet, accessTokenExpiresAt time.Time) {
	if fresh.IDToken != "" {
		s.Tokens.IDToken = fresh.IDToken
	}
	if fresh.AccessToken != "" {
		s.Tokens.AccessToken = fresh.AccessToken
	}
	if fresh.RefreshToken != "" {
		s.Tokens.RefreshToken = fresh.RefreshToken
	}
	if fresh.TokenType != "" {
		s.Tokens.TokenType = fresh.TokenType
	}
	if fresh.ExpiresIn > 0 {
		s.Tokens.ExpiresIn = fresh.ExpiresIn
	}
	s.AccessTokenExpiresAt = accessTokenExpiresAt
}

// DeviceSummary is the best-effort classification of a session's user agent.
type DeviceSummary struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
}
