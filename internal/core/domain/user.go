package domain

import "time"

// ProviderLink records a federated identity linked to a user account.
type ProviderLink struct {
	ProviderUserID string    `json:"provider_user_id"`
	LinkedAt       time.Time `json:"linked_at"`
}

// User mirrors the persisted representation in the users table.
// ExternalSubject is the identity provider's subject identifier; it is
// nominally stable but may be rotated by the provider, so Email acts as the
// durable fallback anchor for reconciliation.
type User struct {
	ID                string
	ExternalSubject   string
	Email             string
	PhoneNumber       *string
	DisplayName       string
	ProfileAttributes map[string]string
	LinkedProviders   map[string]ProviderLink
	CreatedAt         time.Time
}

// LinkProvider records a federated identity link. Returns true when the link
// was added or its provider user id changed.
func (u *User) LinkProvider(provider, providerUserID string, at time.Time) bool {
	if provider == "" || providerUserID == "" {
		return false
	}
	if u.LinkedProviders == nil {
		u.LinkedProviders = make(map[string]ProviderLink)
	}
	if existing, ok := u.LinkedProviders[provider]; ok && existing.ProviderUserID == providerUserID {
		return false
	}
	u.LinkedProviders[provider] = ProviderLink{
		ProviderUserID: providerUserID,
		LinkedAt:       at,
	}
	return true
}
