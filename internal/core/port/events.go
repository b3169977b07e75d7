package port

import (
	"context"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserReconciled(ctx context.Context, event domain.UserReconciledEvent) error
	PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
	PublishGrantRevoked(ctx context.Context, event domain.GrantRevokedEvent) error
}
