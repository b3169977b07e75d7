package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

type fakeUserRepository struct {
	users     map[string]*domain.User
	createErr error
	updateErr error

	updateCalls int
}

func newFakeUserRepository(users ...domain.User) *fakeUserRepository {
	repo := &fakeUserRepository{users: make(map[string]*domain.User)}
	for i := range users {
		userCopy := users[i]
		repo.users[userCopy.ID] = &userCopy
	}
	return repo
}

func (f *fakeUserRepository) Create(ctx context.Context, user domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	userCopy := user
	f.users[user.ID] = &userCopy
	return nil
}

func (f *fakeUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

func (f *fakeUserRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	for _, user := range f.users {
		if user.ExternalSubject == subject {
			userCopy := *user
			return &userCopy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			userCopy := *user
			return &userCopy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepository) Update(ctx context.Context, user domain.User) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	userCopy := user
	f.users[user.ID] = &userCopy
	f.updateCalls++
	return nil
}

func (f *fakeUserRepository) Delete(ctx context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

type grantKey struct {
	applicationID string
	userID        string
}

type fakeGrantRepository struct {
	grants    map[grantKey]*domain.Grant
	upsertErr error
}

func newFakeGrantRepository(grants ...domain.Grant) *fakeGrantRepository {
	repo := &fakeGrantRepository{grants: make(map[grantKey]*domain.Grant)}
	for i := range grants {
		grantCopy := grants[i]
		repo.grants[grantKey{grantCopy.ApplicationID, grantCopy.UserID}] = &grantCopy
	}
	return repo
}

func (f *fakeGrantRepository) Upsert(ctx context.Context, grant domain.Grant) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	grantCopy := grant
	f.grants[grantKey{grant.ApplicationID, grant.UserID}] = &grantCopy
	return nil
}

func (f *fakeGrantRepository) Get(ctx context.Context, applicationID, userID string) (*domain.Grant, error) {
	grant, ok := f.grants[grantKey{applicationID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	grantCopy := *grant
	return &grantCopy, nil
}

func (f *fakeGrantRepository) Revoke(ctx context.Context, applicationID, userID string, at time.Time) error {
	grant, ok := f.grants[grantKey{applicationID, userID}]
	if !ok || grant.Status != domain.GrantStatusActive {
		return repository.ErrNotFound
	}
	grant.Status = domain.GrantStatusRevoked
	revokedAt := at
	grant.RevokedAt = &revokedAt
	return nil
}

func (f *fakeGrantRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.Grant, error) {
	result := make([]domain.Grant, 0)
	for _, grant := range f.grants {
		if grant.UserID == userID && grant.Status == domain.GrantStatusActive {
			result = append(result, *grant)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].GrantedAt.After(result[j].GrantedAt)
	})
	return result, nil
}

func (f *fakeGrantRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	count := 0
	for _, grant := range f.grants {
		if grant.UserID == userID && grant.Status == domain.GrantStatusActive {
			grant.Status = domain.GrantStatusRevoked
			revokedAt := at
			grant.RevokedAt = &revokedAt
			count++
		}
	}
	return count, nil
}

type fakeApplicationRepository struct {
	applications map[string]*domain.Application
}

func newFakeApplicationRepository(applications ...domain.Application) *fakeApplicationRepository {
	repo := &fakeApplicationRepository{applications: make(map[string]*domain.Application)}
	for i := range applications {
		appCopy := applications[i]
		repo.applications[appCopy.ID] = &appCopy
	}
	return repo
}

func (f *fakeApplicationRepository) GetByID(ctx context.Context, applicationID string) (*domain.Application, error) {
	app, ok := f.applications[applicationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	appCopy := *app
	return &appCopy, nil
}

func (f *fakeApplicationRepository) GetByIDs(ctx context.Context, applicationIDs []string) ([]domain.Application, error) {
	result := make([]domain.Application, 0, len(applicationIDs))
	for _, id := range applicationIDs {
		if app, ok := f.applications[id]; ok {
			result = append(result, *app)
		}
	}
	return result, nil
}

type fakeSessionRepository struct {
	sessions  map[string]*domain.Session
	deleteErr map[string]error
	getErr    error
}

func newFakeSessionRepository(sessions ...domain.Session) *fakeSessionRepository {
	repo := &fakeSessionRepository{
		sessions:  make(map[string]*domain.Session),
		deleteErr: make(map[string]error),
	}
	for i := range sessions {
		sessionCopy := sessions[i]
		repo.sessions[sessionCopy.ID] = &sessionCopy
	}
	return repo
}

func (f *fakeSessionRepository) Create(ctx context.Context, session domain.Session) error {
	sessionCopy := session
	f.sessions[session.ID] = &sessionCopy
	return nil
}

func (f *fakeSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	sessionCopy := *session
	return &sessionCopy, nil
}

func (f *fakeSessionRepository) Update(ctx context.Context, session domain.Session) error {
	if _, ok := f.sessions[session.ID]; !ok {
		return repository.ErrNotFound
	}
	sessionCopy := session
	f.sessions[session.ID] = &sessionCopy
	return nil
}

func (f *fakeSessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	result := make([]domain.Session, 0)
	for _, session := range f.sessions {
		if session.UserID == userID {
			result = append(result, *session)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (f *fakeSessionRepository) Delete(ctx context.Context, sessionID string) error {
	if err, ok := f.deleteErr[sessionID]; ok {
		return err
	}
	delete(f.sessions, sessionID)
	return nil
}

type fakeVerifier struct {
	claims map[string]*domain.Claims
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{claims: make(map[string]*domain.Claims)}
}

func (f *fakeVerifier) Verify(ctx context.Context, identityToken string) (*domain.Claims, error) {
	claims, ok := f.claims[identityToken]
	if !ok {
		return nil, errors.New("invalid identity token")
	}
	claimsCopy := *claims
	return &claimsCopy, nil
}

type fakeIdentityProvider struct {
	tokens     *domain.TokenSet
	refreshErr error

	refreshCalls []string
}

func (f *fakeIdentityProvider) Refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	f.refreshCalls = append(f.refreshCalls, refreshToken)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	tokensCopy := *f.tokens
	return &tokensCopy, nil
}

type recordingPublisher struct {
	registered []domain.UserRegisteredEvent
	reconciled []domain.UserReconciledEvent
	created    []domain.SessionCreatedEvent
	revoked    []domain.SessionRevokedEvent
	grants     []domain.GrantRevokedEvent
}

func (p *recordingPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishUserReconciled(ctx context.Context, event domain.UserReconciledEvent) error {
	p.reconciled = append(p.reconciled, event)
	return nil
}

func (p *recordingPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	p.created = append(p.created, event)
	return nil
}

func (p *recordingPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *recordingPublisher) PublishGrantRevoked(ctx context.Context, event domain.GrantRevokedEvent) error {
	p.grants = append(p.grants, event)
	return nil
}
