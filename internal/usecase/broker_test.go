package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/sso-broker/internal/core/domain"
)

type brokerFixture struct {
	broker   *BrokerService
	verifier *fakeVerifier
	users    *fakeUserRepository
	grants   *fakeGrantRepository
	apps     *fakeApplicationRepository
	sessions *fakeSessionRepository
	events   *recordingPublisher
}

func newBrokerFixture(t *testing.T, autoGrant bool) *brokerFixture {
	t.Helper()

	verifier := newFakeVerifier()
	users := newFakeUserRepository()
	grants := newFakeGrantRepository()
	apps := newFakeApplicationRepository(domain.Application{
		ID:   "app1",
		Name: "Shop",
		Channels: []domain.Channel{
			{ChannelID: "web", ReturnURL: "https://shop.example.com/callback"},
		},
	})
	sessions := newFakeSessionRepository()
	events := &recordingPublisher{}

	identity := NewIdentityService(users, events, nil)
	authz := NewAuthorizationService(grants, apps, events, nil)
	sessionService := NewSessionService(sessions, nil, sessionSettings(), nil)
	broker := NewBrokerService(verifier, identity, authz, sessionService, apps, events, autoGrant, nil)

	return &brokerFixture{
		broker:   broker,
		verifier: verifier,
		users:    users,
		grants:   grants,
		apps:     apps,
		sessions: sessions,
		events:   events,
	}
}

func (f *brokerFixture) allowToken(token, subject, email string) {
	f.verifier.claims[token] = &domain.Claims{Subject: subject, Email: email}
}

func TestInitializeSessionRejectsInvalidToken(t *testing.T) {
	f := newBrokerFixture(t, false)

	_, err := f.broker.InitializeSession(context.Background(), "forged", "app1", domain.TokenSet{}, nil)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("no session may be written for an invalid token")
	}
}

func TestInitializeSessionRequiresApplicationID(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	_, err := f.broker.InitializeSession(context.Background(), "tok", "  ", domain.TokenSet{}, nil)
	if !errors.Is(err, ErrMissingApplicationID) {
		t.Fatalf("expected ErrMissingApplicationID, got %v", err)
	}
}

func TestInitializeSessionUnknownApplication(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	_, err := f.broker.InitializeSession(context.Background(), "tok", "nope", domain.TokenSet{}, nil)
	if !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}

func TestInitializeSessionRequiresConsentWithoutAutoGrant(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	_, err := f.broker.InitializeSession(context.Background(), "tok", "app1", domain.TokenSet{}, nil)
	if !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected ErrAuthorizationRequired, got %v", err)
	}
	if len(f.sessions.sessions) != 0 {
		t.Fatal("authorization must be checked before the session is written")
	}
}

func TestInitializeSessionAutoGrantsOnFirstUse(t *testing.T) {
	f := newBrokerFixture(t, true)
	f.allowToken("tok", "sub-1", "a@example.com")

	agent := "Mozilla/5.0 (iPhone) Safari"
	result, err := f.broker.InitializeSession(context.Background(), "tok", "app1", domain.TokenSet{
		IDToken:     "id",
		AccessToken: "access",
		ExpiresIn:   3600,
	}, &agent)
	if err != nil {
		t.Fatalf("InitializeSession failed: %v", err)
	}

	if result.Session == nil || result.User == nil {
		t.Fatalf("incomplete result: %+v", result)
	}
	if result.Session.UserID != result.User.ID || result.Session.ApplicationID != "app1" {
		t.Fatalf("session binding wrong: %+v", result.Session)
	}

	grant, err := f.grants.Get(context.Background(), "app1", result.User.ID)
	if err != nil || !grant.IsActive() {
		t.Fatalf("expected auto-created grant, got %v err=%v", grant, err)
	}
	if len(grant.Scopes) != 0 {
		t.Fatalf("auto grant must be unscoped, got %v", grant.Scopes)
	}

	if len(f.events.created) != 1 {
		t.Fatalf("expected session created event, got %d", len(f.events.created))
	}
	if len(f.events.registered) != 1 {
		t.Fatalf("expected user registered event, got %d", len(f.events.registered))
	}
}

func TestInitializeSessionWithExistingGrant(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	user, err := f.broker.identity.ResolveOrCreate(context.Background(), &domain.Claims{Subject: "sub-1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := f.broker.authz.Grant(context.Background(), "app1", user.ID, []string{"profile"}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	result, err := f.broker.InitializeSession(context.Background(), "tok", "app1", domain.TokenSet{AccessToken: "a"}, nil)
	if err != nil {
		t.Fatalf("InitializeSession failed: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("expected same user resolved, got %s vs %s", result.User.ID, user.ID)
	}
}

func TestGetSessionTokensRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	idp := &fakeIdentityProvider{tokens: &domain.TokenSet{AccessToken: "access-new"}}

	sessions := newFakeSessionRepository(domain.Session{
		ID:                   "sess_1",
		UserID:               "user1",
		ApplicationID:        "app1",
		Tokens:               domain.TokenSet{AccessToken: "access-old", RefreshToken: "rt"},
		ExpiresAt:            now.Add(6 * time.Hour),
		AccessTokenExpiresAt: now.Add(time.Minute),
	})
	sessionService := NewSessionService(sessions, idp, sessionSettings(), nil)
	sessionService.WithClock(fixedClock(now))

	broker := NewBrokerService(newFakeVerifier(), nil, nil, sessionService, newFakeApplicationRepository(), nil, false, nil)
	broker.WithClock(fixedClock(now))

	session, err := broker.GetSessionTokens(context.Background(), "sess_1")
	if err != nil {
		t.Fatalf("GetSessionTokens failed: %v", err)
	}
	if session.Tokens.AccessToken != "access-new" {
		t.Fatalf("expected refreshed access token, got %q", session.Tokens.AccessToken)
	}
	if len(idp.refreshCalls) != 1 || idp.refreshCalls[0] != "rt" {
		t.Fatalf("unexpected refresh calls: %v", idp.refreshCalls)
	}
}

func TestGetSessionTokensExpiredSession(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := newFakeSessionRepository(domain.Session{
		ID:        "sess_1",
		ExpiresAt: now.Add(-time.Minute),
	})
	sessionService := NewSessionService(sessions, nil, sessionSettings(), nil)
	sessionService.WithClock(fixedClock(now))
	broker := NewBrokerService(newFakeVerifier(), nil, nil, sessionService, newFakeApplicationRepository(), nil, false, nil)

	if _, err := broker.GetSessionTokens(context.Background(), "sess_1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListUserSessionsClassifiesDevices(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	iphone := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile Safari"
	sessions := newFakeSessionRepository(
		domain.Session{ID: "sess_a", UserID: "user1", ExpiresAt: now.Add(time.Hour), UserAgent: &iphone},
		domain.Session{ID: "sess_b", UserID: "user1", ExpiresAt: now.Add(-time.Hour)},
	)
	sessionService := NewSessionService(sessions, nil, sessionSettings(), nil)
	sessionService.WithClock(fixedClock(now))
	broker := NewBrokerService(newFakeVerifier(), nil, nil, sessionService, newFakeApplicationRepository(), nil, false, nil)

	views, err := broker.ListUserSessions(context.Background(), "user1", false)
	if err != nil {
		t.Fatalf("ListUserSessions failed: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected only active sessions, got %d", len(views))
	}
	if views[0].Device.DeviceType != "Mobile" || views[0].Device.OS != "iOS" {
		t.Fatalf("unexpected device classification: %+v", views[0].Device)
	}

	views, err = broker.ListUserSessions(context.Background(), "user1", true)
	if err != nil {
		t.Fatalf("ListUserSessions failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected expired sessions included, got %d", len(views))
	}
	for _, view := range views {
		if view.Session.ID == "sess_b" && !view.Expired {
			t.Fatal("expired session not flagged")
		}
	}
}

func TestRevokeSessionEnforcesOwnership(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := newFakeSessionRepository(domain.Session{
		ID:        "sess_1",
		UserID:    "user1",
		ExpiresAt: now.Add(time.Hour),
	})
	sessionService := NewSessionService(sessions, nil, sessionSettings(), nil)
	sessionService.WithClock(fixedClock(now))
	events := &recordingPublisher{}
	broker := NewBrokerService(newFakeVerifier(), nil, nil, sessionService, newFakeApplicationRepository(), events, false, nil)

	if err := broker.RevokeSession(context.Background(), "sess_1", "intruder"); !errors.Is(err, ErrSessionForbidden) {
		t.Fatalf("expected ErrSessionForbidden, got %v", err)
	}
	if _, ok := sessions.sessions["sess_1"]; !ok {
		t.Fatal("session must survive forbidden revoke")
	}

	if err := broker.RevokeSession(context.Background(), "sess_1", "user1"); err != nil {
		t.Fatalf("owner revoke failed: %v", err)
	}
	if _, ok := sessions.sessions["sess_1"]; ok {
		t.Fatal("session not deleted")
	}
	if len(events.revoked) != 1 {
		t.Fatalf("expected session revoked event, got %d", len(events.revoked))
	}
}

func TestRevokeAllOtherSessionsEmitsBulkEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions := newFakeSessionRepository(
		domain.Session{ID: "sess_current", UserID: "user1", ExpiresAt: now.Add(time.Hour)},
		domain.Session{ID: "sess_other", UserID: "user1", ExpiresAt: now.Add(time.Hour)},
	)
	sessionService := NewSessionService(sessions, nil, sessionSettings(), nil)
	sessionService.WithClock(fixedClock(now))
	events := &recordingPublisher{}
	broker := NewBrokerService(newFakeVerifier(), nil, nil, sessionService, newFakeApplicationRepository(), events, false, nil)
	broker.WithClock(fixedClock(now))

	count, err := broker.RevokeAllOtherSessions(context.Background(), "user1", "sess_current")
	if err != nil {
		t.Fatalf("RevokeAllOtherSessions failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 revoked, got %d", count)
	}
	if len(events.revoked) != 1 {
		t.Fatalf("expected one bulk revoke event, got %d", len(events.revoked))
	}
	if events.revoked[0].Reason != "bulk_revoke" {
		t.Fatalf("unexpected reason %q", events.revoked[0].Reason)
	}

	count, err = broker.RevokeAllOtherSessions(context.Background(), "user1", "sess_current")
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if count != 0 || len(events.revoked) != 1 {
		t.Fatalf("no-op revoke must emit nothing, count=%d events=%d", count, len(events.revoked))
	}
}

func TestAuthorizeApplicationDenyCreatesNothing(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	grant, err := f.broker.AuthorizeApplication(context.Background(), "tok", "app1", []string{"profile"}, DecisionDeny)
	if err != nil {
		t.Fatalf("deny must not error: %v", err)
	}
	if grant != nil {
		t.Fatalf("deny must create no grant, got %+v", grant)
	}
	if len(f.grants.grants) != 0 {
		t.Fatal("grant store must stay empty after deny")
	}
}

func TestAuthorizeApplicationApproveRequiresScopes(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	if _, err := f.broker.AuthorizeApplication(context.Background(), "tok", "app1", nil, DecisionApprove); !errors.Is(err, ErrNoScopesGranted) {
		t.Fatalf("expected ErrNoScopesGranted, got %v", err)
	}

	grant, err := f.broker.AuthorizeApplication(context.Background(), "tok", "app1", []string{"profile", "email"}, DecisionApprove)
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if grant == nil || !grant.IsActive() {
		t.Fatalf("expected active grant, got %+v", grant)
	}
}

func TestCheckApplicationUserCreatesUserAndReportsGrantState(t *testing.T) {
	f := newBrokerFixture(t, false)
	f.allowToken("tok", "sub-1", "a@example.com")

	user, authorized, err := f.broker.CheckApplicationUser(context.Background(), "tok", "app1")
	if err != nil {
		t.Fatalf("CheckApplicationUser failed: %v", err)
	}
	if user == nil || user.Email != "a@example.com" {
		t.Fatalf("expected user created from claims, got %+v", user)
	}
	if authorized {
		t.Fatal("fresh user must not be authorized")
	}

	if _, err := f.broker.authz.Grant(context.Background(), "app1", user.ID, nil); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	_, authorized, err = f.broker.CheckApplicationUser(context.Background(), "tok", "app1")
	if err != nil {
		t.Fatalf("CheckApplicationUser failed: %v", err)
	}
	if !authorized {
		t.Fatal("expected authorized after grant")
	}
}

func TestValidateAppChannel(t *testing.T) {
	f := newBrokerFixture(t, false)

	valid, returnURL, err := f.broker.ValidateAppChannel(context.Background(), "app1", "web")
	if err != nil {
		t.Fatalf("ValidateAppChannel failed: %v", err)
	}
	if !valid || returnURL != "https://shop.example.com/callback" {
		t.Fatalf("unexpected result: valid=%v url=%q", valid, returnURL)
	}

	valid, returnURL, err = f.broker.ValidateAppChannel(context.Background(), "app1", "missing")
	if err != nil {
		t.Fatalf("ValidateAppChannel failed: %v", err)
	}
	if valid || returnURL != "" {
		t.Fatalf("unknown channel must be invalid, got valid=%v url=%q", valid, returnURL)
	}

	if _, _, err := f.broker.ValidateAppChannel(context.Background(), "ghost", "web"); !errors.Is(err, ErrApplicationNotFound) {
		t.Fatalf("expected ErrApplicationNotFound, got %v", err)
	}
}
