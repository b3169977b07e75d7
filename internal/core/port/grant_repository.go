package port

import (
	"context"
	"time"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// GrantRepository persists authorization grants. Upsert overwrites any prior
// grant for the (application, user) pair; Revoke tombstones instead of
// deleting.
type GrantRepository interface {
	Upsert(ctx context.Context, grant domain.Grant) error
	Get(ctx context.Context, applicationID, userID string) (*domain.Grant, error)
	Revoke(ctx context.Context, applicationID, userID string, at time.Time) error
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Grant, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
}
