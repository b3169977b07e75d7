package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/infra/config"
	"github.com/arklim/sso-broker/internal/infra/security"
	"github.com/arklim/sso-broker/internal/repository"
)

// ErrSessionNotFound covers both unknown and expired sessions. Callers cannot
// distinguish the two, which avoids leaking an id-enumeration signal.
var ErrSessionNotFound = errors.New("session not found")

// SessionService owns session lifecycle: creation, expiry-aware reads, lazy
// token refresh, enumeration, and revocation.
type SessionService struct {
	sessions port.SessionRepository
	idp      port.IdentityProvider
	cfg      config.SessionSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, idp port.IdentityProvider, cfg config.SessionSettings, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.RefreshHorizon <= 0 {
		cfg.RefreshHorizon = 5 * time.Minute
	}
	if cfg.RefreshExtension <= 0 {
		cfg.RefreshExtension = time.Hour
	}
	service := &SessionService{
		sessions: sessions,
		idp:      idp,
		cfg:      cfg,
		logger:   log,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Create mints an unguessable session id and persists the session. The
// session window is fixed at creation; later token refreshes never extend it.
func (s *SessionService) Create(ctx context.Context, userID, applicationID string, tokens domain.TokenSet, userAgent *string) (*domain.Session, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(applicationID) == "" {
		return nil, fmt.Errorf("user id and application id are required")
	}

	sessionID, err := security.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := s.now()
	session := domain.Session{
		ID:            sessionID,
		UserID:        userID,
		ApplicationID: applicationID,
		Tokens:        tokens,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.TTL),
		UserAgent:     sanitizeUserAgent(userAgent),
	}
	if tokens.ExpiresIn > 0 {
		session.AccessTokenExpiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	return &session, nil
}

// Get returns the session when it exists and has not expired. An expired
// session reads the same as a missing one.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session.IsExpired(s.now()) {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// RefreshIfNeeded exchanges the wrapped refresh token for a fresh token set
// when the access token is inside the refresh horizon. Failures are logged
// and the session is returned unchanged; a stale token beats a failed read.
func (s *SessionService) RefreshIfNeeded(ctx context.Context, session *domain.Session) *domain.Session {
	now := s.now()
	if session == nil || !session.NeedsRefresh(now, s.cfg.RefreshHorizon) {
		return session
	}
	if session.Tokens.RefreshToken == "" {
		s.logger.Warn("session needs refresh but holds no refresh token",
			zap.String("session_id", session.ID),
		)
		return session
	}
	if s.idp == nil {
		return session
	}

	fresh, err := s.idp.Refresh(ctx, session.Tokens.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed, returning session unchanged",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return session
	}

	session.ApplyRefresh(*fresh, now.Add(s.cfg.RefreshExtension))

	if err := s.sessions.Update(ctx, *session); err != nil {
		s.logger.Warn("failed to persist refreshed tokens",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	return session
}

// ListForUser partitions the user's stored sessions into active and expired
// at read time.
func (s *SessionService) ListForUser(ctx context.Context, userID string) (active, expired []domain.Session, err error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now()
	active = make([]domain.Session, 0, len(sessions))
	expired = make([]domain.Session, 0)
	for _, session := range sessions {
		if session.IsExpired(now) {
			expired = append(expired, session)
			continue
		}
		active = append(active, session)
	}

	return active, expired, nil
}

// Delete removes the session unconditionally. Deleting an absent session is
// not an error.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// RevokeAllForUser deletes every active session except the given one and
// returns the number deleted. Individual failures are logged and skipped;
// the count reflects successes only.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string) (int, error) {
	active, _, err := s.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, session := range active {
		if session.ID == exceptSessionID {
			continue
		}
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			s.logger.Warn("failed to delete session during bulk revoke",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			continue
		}
		count++
	}

	return count, nil
}

func sanitizeUserAgent(userAgent *string) *string {
	if userAgent == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*userAgent)
	if trimmed == "" {
		return nil
	}
	const maxLen = 512
	if len(trimmed) > maxLen {
		trimmed = trimmed[:maxLen]
	}
	return &trimmed
}
