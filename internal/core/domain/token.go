package domain

// TokenSet holds the identity-provider issued tokens wrapped by a session.
// The broker never mints tokens itself; it stores, relays, and refreshes
// what the provider issued.
type TokenSet struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Claims carries the normalized result of identity-token verification.
type Claims struct {
	Subject       string
	Email         string
	Name          string
	PhoneNumber   string
	EmailVerified bool
	TokenUse      string
	UserStatus    string

	// Federated identity, populated when the token was issued through a
	// social/external provider.
	Provider       string
	ProviderUserID string

	// Admin surface.
	Groups  []string
	IsAdmin bool

	// Open profile attributes (gender, marketing consent, ...).
	Profile map[string]string
}
