package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

const defaultSessionPrefix = "sso:session"

// retentionGrace keeps expired session records readable past their window so
// per-user listings can still partition them; the record then ages out of
// Redis on its own.
const retentionGrace = 24 * time.Hour

// SessionRepository persists opaque sessions as JSON values with a per-user
// index set for enumeration. Expiry filtering happens at the usecase layer;
// this repository returns records as stored.
type SessionRepository struct {
	client *red.Client
	prefix string
	logger *zap.Logger
}

type sessionRecord struct {
	ID                   string          `json:"id"`
	UserID               string          `json:"user_id"`
	ApplicationID        string          `json:"application_id"`
	Tokens               domain.TokenSet `json:"tokens"`
	CreatedAt            time.Time       `json:"created_at"`
	ExpiresAt            time.Time       `json:"expires_at"`
	AccessTokenExpiresAt time.Time       `json:"access_token_expires_at"`
	UserAgent            *string         `json:"user_agent,omitempty"`
}

// NewSessionRepository constructs a Redis-backed session repository.
func NewSessionRepository(client *red.Client, keyPrefix string, logger *zap.Logger) *SessionRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SessionRepository{client: client, prefix: prefix, logger: logger}
}

// Create stores the session and indexes it under its owner.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if session.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	payload, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt) + retentionGrace

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, r.userIndexKey(session.UserID), session.ID)
	pipe.Expire(ctx, r.userIndexKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store session: %w", err)
	}

	return nil
}

// Get retrieves a stored session by id.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, repository.ErrNotFound
	}

	payload, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	session := fromRecord(record)
	return &session, nil
}

// Update rewrites the stored session preserving its remaining retention
// window. Used by the lazy token-refresh path.
func (r *SessionRepository) Update(ctx context.Context, session domain.Session) error {
	payload, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ok, err := r.client.SetXX(ctx, r.sessionKey(session.ID), payload, red.KeepTTL).Result()
	if err != nil {
		return fmt.Errorf("redis update session: %w", err)
	}
	if !ok {
		return repository.ErrNotFound
	}

	return nil
}

// ListByUser returns every stored session for the user, active or expired.
// Index entries whose record already aged out are pruned as encountered.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	ids, err := r.client.SMembers(ctx, r.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				if remErr := r.client.SRem(ctx, r.userIndexKey(userID), id).Err(); remErr != nil {
					r.logger.Warn("prune stale session index entry failed",
						zap.String("session_id", id), zap.Error(remErr))
				}
				continue
			}
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, nil
}

// Delete removes the session record and its index entry. Deleting an absent
// session is not an error; revocation is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.SRem(ctx, r.userIndexKey(session.UserID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}

	return nil
}

func (r *SessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", r.prefix, sessionID)
}

func (r *SessionRepository) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, userID)
}

func toRecord(session domain.Session) sessionRecord {
	return sessionRecord{
		ID:                   session.ID,
		UserID:               session.UserID,
		ApplicationID:        session.ApplicationID,
		Tokens:               session.Tokens,
		CreatedAt:            session.CreatedAt,
		ExpiresAt:            session.ExpiresAt,
		AccessTokenExpiresAt: session.AccessTokenExpiresAt,
		UserAgent:            session.UserAgent,
	}
}

func fromRecord(record sessionRecord) domain.Session {
	return domain.Session{
		ID:                   record.ID,
		UserID:               record.UserID,
		ApplicationID:        record.ApplicationID,
		Tokens:               record.Tokens,
		CreatedAt:            record.CreatedAt,
		ExpiresAt:            record.ExpiresAt,
		AccessTokenExpiresAt: record.AccessTokenExpiresAt,
		UserAgent:            record.UserAgent,
	}
}
