package port

import (
	"context"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// SessionRepository deals with opaque session storage. Records are returned
// as stored; read-time expiry filtering belongs to the usecase layer.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Update(ctx context.Context, session domain.Session) error
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}
