package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/core/port"
	"github.com/arklim/sso-broker/internal/repository"
)

var (
	// ErrInvalidToken indicates the identity token failed verification. Every
	// verification sub-failure collapses into this one error.
	ErrInvalidToken = errors.New("invalid identity token")
	// ErrMissingApplicationID indicates the caller omitted the application id.
	ErrMissingApplicationID = errors.New("application id is required")
	// ErrApplicationNotFound indicates the application is not registered.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrAuthorizationRequired indicates the user has not consented to the
	// application and the deployment requires explicit consent.
	ErrAuthorizationRequired = errors.New("application authorization required")
	// ErrNoScopesGranted indicates an approve decision arrived with no scopes.
	ErrNoScopesGranted = errors.New("no scopes granted")
	// ErrSessionForbidden indicates the session belongs to another user.
	ErrSessionForbidden = errors.New("session not owned by user")
)

// AuthorizationRequiredError carries the missing-scope detail so the caller
// can drive a consent UI. It matches ErrAuthorizationRequired under errors.Is.
type AuthorizationRequiredError struct {
	MissingScopes []string
}

func (e *AuthorizationRequiredError) Error() string {
	if len(e.MissingScopes) == 0 {
		return ErrAuthorizationRequired.Error()
	}
	return fmt.Sprintf("%s: missing scopes %s", ErrAuthorizationRequired.Error(), strings.Join(e.MissingScopes, ", "))
}

func (e *AuthorizationRequiredError) Is(target error) bool {
	return target == ErrAuthorizationRequired
}

// ConsentDecision enumerates the outcomes of an explicit consent prompt.
type ConsentDecision string

const (
	DecisionApprove ConsentDecision = "approve"
	DecisionDeny    ConsentDecision = "deny"
)

// SessionView pairs a session with its device classification for listings.
type SessionView struct {
	Session domain.Session
	Device  domain.DeviceSummary
	Expired bool
}

// InitializeResult is the outcome of a successful session initialization.
type InitializeResult struct {
	Session *domain.Session
	User    *domain.User
}

// BrokerService orchestrates the full broker flows: token verification,
// identity resolution, authorization checks, and session lifecycle.
type BrokerService struct {
	verifier     port.TokenVerifier
	identity     *IdentityService
	authz        *AuthorizationService
	sessions     *SessionService
	applications port.ApplicationRepository
	events       port.EventPublisher
	logger       *zap.Logger
	autoGrant    bool
	now          func() time.Time
}

// NewBrokerService constructs a BrokerService.
func NewBrokerService(
	verifier port.TokenVerifier,
	identity *IdentityService,
	authz *AuthorizationService,
	sessions *SessionService,
	applications port.ApplicationRepository,
	events port.EventPublisher,
	autoGrant bool,
	log *zap.Logger,
) *BrokerService {
	if log == nil {
		log = zap.NewNop()
	}
	service := &BrokerService{
		verifier:     verifier,
		identity:     identity,
		authz:        authz,
		sessions:     sessions,
		applications: applications,
		events:       events,
		logger:       log,
		autoGrant:    autoGrant,
	}
	service.now = func() time.Time { return time.Now().UTC() }
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *BrokerService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// InitializeSession turns a verified identity token into an opaque session:
// verify, resolve the user, confirm (or auto-create) the authorization grant,
// then persist the session. Authorization is checked before the session
// record is written.
func (s *BrokerService) InitializeSession(ctx context.Context, identityToken, applicationID string, tokens domain.TokenSet, userAgent *string) (*InitializeResult, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, ErrMissingApplicationID
	}

	claims, err := s.verifier.Verify(ctx, identityToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if _, err := s.lookupApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	user, err := s.identity.ResolveOrCreate(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	authorized, err := s.authz.Check(ctx, applicationID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check authorization: %w", err)
	}
	if !authorized {
		if !s.autoGrant {
			return nil, &AuthorizationRequiredError{}
		}
		if _, err := s.authz.Grant(ctx, applicationID, user.ID, nil); err != nil {
			return nil, fmt.Errorf("auto grant: %w", err)
		}
	}

	session, err := s.sessions.Create(ctx, user.ID, applicationID, tokens, userAgent)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.publishSessionCreated(ctx, session)

	return &InitializeResult{Session: session, User: user}, nil
}

// GetSessionTokens fetches a session and lazily refreshes its token set when
// the wrapped access token is near expiry. Refresh failures do not fail the
// read.
func (s *BrokerService) GetSessionTokens(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.sessions.RefreshIfNeeded(ctx, session), nil
}

// ListUserSessions enumerates the user's sessions with best-effort device
// classification. Expired sessions are included only on request.
func (s *BrokerService) ListUserSessions(ctx context.Context, userID string, includeExpired bool) ([]SessionView, error) {
	active, expired, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]SessionView, 0, len(active)+len(expired))
	for _, session := range active {
		views = append(views, SessionView{
			Session: session,
			Device:  ClassifyDevice(session.UserAgent),
		})
	}
	if includeExpired {
		for _, session := range expired {
			views = append(views, SessionView{
				Session: session,
				Device:  ClassifyDevice(session.UserAgent),
				Expired: true,
			})
		}
	}

	return views, nil
}

// RevokeSession deletes a session after confirming the requester owns it.
func (s *BrokerService) RevokeSession(ctx context.Context, sessionID, requestingUserID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != requestingUserID {
		return ErrSessionForbidden
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}

	s.publishSessionRevoked(ctx, session, requestingUserID, "user_revoke")

	return nil
}

// RevokeAllOtherSessions bulk-deletes the user's active sessions, sparing the
// one currently in use, and returns the count deleted.
func (s *BrokerService) RevokeAllOtherSessions(ctx context.Context, userID, currentSessionID string) (int, error) {
	count, err := s.sessions.RevokeAllForUser(ctx, userID, currentSessionID)
	if err != nil {
		return 0, err
	}

	if count > 0 && s.events != nil {
		event := domain.SessionRevokedEvent{
			EventID:   uuid.NewString(),
			UserID:    userID,
			RevokedAt: s.now(),
			RevokedBy: userID,
			Reason:    "bulk_revoke",
		}
		if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
			s.logger.Warn("failed to publish session revoked event", zap.Error(err))
		}
	}

	return count, nil
}

// AuthorizeApplication records an explicit consent decision. Deny is a
// legitimate outcome that creates nothing; approve requires a non-empty scope
// set and overwrites any prior grant.
func (s *BrokerService) AuthorizeApplication(ctx context.Context, identityToken, applicationID string, scopes []string, decision ConsentDecision) (*domain.Grant, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, ErrMissingApplicationID
	}

	claims, err := s.verifier.Verify(ctx, identityToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if _, err := s.lookupApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	user, err := s.identity.ResolveOrCreate(ctx, claims)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	if decision == DecisionDeny {
		s.logger.Info("user denied application authorization",
			zap.String("application_id", applicationID),
			zap.String("user_id", user.ID),
		)
		return nil, nil
	}
	if decision != DecisionApprove {
		return nil, fmt.Errorf("unknown consent decision %q", decision)
	}
	if len(scopes) == 0 {
		return nil, ErrNoScopesGranted
	}

	return s.authz.Grant(ctx, applicationID, user.ID, scopes)
}

// CheckApplicationUser verifies the identity token, resolves (creating if
// necessary) the user, and reports whether an active grant exists for the
// application.
func (s *BrokerService) CheckApplicationUser(ctx context.Context, identityToken, applicationID string) (*domain.User, bool, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, false, ErrMissingApplicationID
	}

	claims, err := s.verifier.Verify(ctx, identityToken)
	if err != nil {
		return nil, false, ErrInvalidToken
	}

	if _, err := s.lookupApplication(ctx, applicationID); err != nil {
		return nil, false, err
	}

	user, err := s.identity.ResolveOrCreate(ctx, claims)
	if err != nil {
		return nil, false, fmt.Errorf("resolve user: %w", err)
	}

	authorized, err := s.authz.Check(ctx, applicationID, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("check authorization: %w", err)
	}

	return user, authorized, nil
}

// ValidateAppChannel checks that the channel is registered under the
// application and returns its configured return URL.
func (s *BrokerService) ValidateAppChannel(ctx context.Context, applicationID, channelID string) (bool, string, error) {
	if strings.TrimSpace(applicationID) == "" {
		return false, "", ErrMissingApplicationID
	}

	app, err := s.lookupApplication(ctx, applicationID)
	if err != nil {
		return false, "", err
	}

	channel, ok := app.Channel(channelID)
	if !ok {
		return false, "", nil
	}
	return true, channel.ReturnURL, nil
}

func (s *BrokerService) lookupApplication(ctx context.Context, applicationID string) (*domain.Application, error) {
	app, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	return app, nil
}

func (s *BrokerService) publishSessionCreated(ctx context.Context, session *domain.Session) {
	if s.events == nil {
		return
	}
	event := domain.SessionCreatedEvent{
		EventID:       uuid.NewString(),
		SessionID:     session.ID,
		UserID:        session.UserID,
		ApplicationID: session.ApplicationID,
		CreatedAt:     session.CreatedAt,
		ExpiresAt:     session.ExpiresAt,
		UserAgent:     session.UserAgent,
	}
	if err := s.events.PublishSessionCreated(ctx, event); err != nil {
		s.logger.Warn("failed to publish session created event", zap.Error(err))
	}
}

func (s *BrokerService) publishSessionRevoked(ctx context.Context, session *domain.Session, revokedBy, reason string) {
	if s.events == nil {
		return
	}
	event := domain.SessionRevokedEvent{
		EventID:   uuid.NewString(),
		SessionID: session.ID,
		UserID:    session.UserID,
		RevokedAt: s.now(),
		RevokedBy: revokedBy,
		Reason:    reason,
	}
	if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
		s.logger.Warn("failed to publish session revoked event", zap.Error(err))
	}
}
