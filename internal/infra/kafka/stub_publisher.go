package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
)

// StubPublisher logs events instead of publishing them. It is used when
// Kafka is not configured so the broker keeps working without an event bus.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging-only publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (s *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	s.logger.Info("event skipped, kafka disabled",
		zap.String("event_type", "sso.user.registered"),
		zap.String("user_id", event.UserID),
	)
	return nil
}

func (s *StubPublisher) PublishUserReconciled(_ context.Context, event domain.UserReconciledEvent) error {
	s.logger.Info("event skipped, kafka disabled",
		zap.String("event_type", "sso.user.reconciled"),
		zap.String("user_id", event.UserID),
	)
	return nil
}

func (s *StubPublisher) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	s.logger.Info("event skipped, kafka disabled",
		zap.String("event_type", "sso.session.created"),
		zap.String("session_id", event.SessionID),
	)
	return nil
}

func (s *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	s.logger.Info("event skipped, kafka disabled",
		zap.String("event_type", "sso.session.revoked"),
		zap.String("session_id", event.SessionID),
	)
	return nil
}

func (s *StubPublisher) PublishGrantRevoked(_ context.Context, event domain.GrantRevokedEvent) error {
	s.logger.Info("event skipped, kafka disabled",
		zap.String("event_type", "sso.grant.revoked"),
		zap.String("user_id", event.UserID),
	)
	return nil
}
