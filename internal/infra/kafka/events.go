package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes sso.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		ExternalSubject string         `json:"external_subject"`
		Email           string         `json:"email"`
		RegisteredAt    time.Time      `json:"registered_at"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ExternalSubject: event.ExternalSubject,
		Email:           event.Email,
		RegisteredAt:    event.RegisteredAt.UTC(),
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, "sso.user.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishUserReconciled publishes sso.user.reconciled events.
func (p *EventPublisher) PublishUserReconciled(ctx context.Context, event domain.UserReconciledEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		OldSubject   string    `json:"old_subject"`
		NewSubject   string    `json:"new_subject"`
		Provider     string    `json:"provider,omitempty"`
		ReconciledAt time.Time `json:"reconciled_at"`
	}{
		UserID:       event.UserID,
		OldSubject:   event.OldSubject,
		NewSubject:   event.NewSubject,
		Provider:     event.Provider,
		ReconciledAt: event.ReconciledAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "sso.user.reconciled", event.UserID, event.ReconciledAt, payload)
}

// PublishSessionCreated publishes sso.session.created events.
func (p *EventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	payload := struct {
		SessionID     string    `json:"session_id"`
		UserID        string    `json:"user_id"`
		ApplicationID string    `json:"application_id"`
		CreatedAt     time.Time `json:"created_at"`
		ExpiresAt     time.Time `json:"expires_at"`
		UserAgent     *string   `json:"user_agent,omitempty"`
	}{
		SessionID:     event.SessionID,
		UserID:        event.UserID,
		ApplicationID: event.ApplicationID,
		CreatedAt:     event.CreatedAt.UTC(),
		ExpiresAt:     event.ExpiresAt.UTC(),
		UserAgent:     event.UserAgent,
	}

	return p.publish(ctx, event.EventID, "sso.session.created", event.UserID, event.CreatedAt, payload)
}

// PublishSessionRevoked publishes sso.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string    `json:"session_id"`
		UserID    string    `json:"user_id"`
		RevokedAt time.Time `json:"revoked_at"`
		RevokedBy string    `json:"revoked_by,omitempty"`
		Reason    string    `json:"reason,omitempty"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		RevokedAt: event.RevokedAt.UTC(),
		RevokedBy: event.RevokedBy,
		Reason:    event.Reason,
	}

	return p.publish(ctx, event.EventID, "sso.session.revoked", event.UserID, event.RevokedAt, payload)
}

// PublishGrantRevoked publishes sso.grant.revoked events.
func (p *EventPublisher) PublishGrantRevoked(ctx context.Context, event domain.GrantRevokedEvent) error {
	payload := struct {
		ApplicationID string    `json:"application_id"`
		UserID        string    `json:"user_id"`
		RevokedAt     time.Time `json:"revoked_at"`
		RevokedBy     string    `json:"revoked_by,omitempty"`
	}{
		ApplicationID: event.ApplicationID,
		UserID:        event.UserID,
		RevokedAt:     event.RevokedAt.UTC(),
		RevokedBy:     event.RevokedBy,
	}

	return p.publish(ctx, event.EventID, "sso.grant.revoked", event.UserID, event.RevokedAt, payload)
}
