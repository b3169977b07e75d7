package domain

import "time"

// UserRegisteredEvent announces a just-in-time user creation.
type UserRegisteredEvent struct {
	EventID         string
	UserID          string
	ExternalSubject string
	Email           string
	RegisteredAt    time.Time
	Metadata        map[string]any
}

// UserReconciledEvent announces a subject-rotation self-heal, where an
// existing user matched by email had its stored subject rewritten.
type UserReconciledEvent struct {
	EventID      string
	UserID       string
	OldSubject   string
	NewSubject   string
	Provider     string
	ReconciledAt time.Time
}

// SessionCreatedEvent announces a new broker session.
type SessionCreatedEvent struct {
	EventID       string
	SessionID     string
	UserID        string
	ApplicationID string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	UserAgent     *string
}

// SessionRevokedEvent announces session termination, single or bulk.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	UserID    string
	RevokedAt time.Time
	RevokedBy string
	Reason    string
}

// GrantRevokedEvent announces authorization-grant revocation.
type GrantRevokedEvent struct {
	EventID       string
	ApplicationID string
	UserID        string
	RevokedAt     time.Time
	RevokedBy     string
}
