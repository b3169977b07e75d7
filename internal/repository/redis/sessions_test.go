package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/sso-broker/internal/core/domain"
	"github.com/arklim/sso-broker/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func testSession(id, userID string, expiresAt time.Time) domain.Session {
	agent := "Mozilla/5.0 (Macintosh) Safari"
	return domain.Session{
		ID:                   id,
		UserID:               userID,
		ApplicationID:        "app1",
		Tokens:               domain.TokenSet{AccessToken: "access", RefreshToken: "refresh"},
		CreatedAt:            expiresAt.Add(-24 * time.Hour),
		ExpiresAt:            expiresAt,
		AccessTokenExpiresAt: expiresAt.Add(-23 * time.Hour),
		UserAgent:            &agent,
	}
}

func TestSessionRepository_CreateAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	expiresAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	session := testSession("sess_abc", "user1", expiresAt)

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.Get(context.Background(), "sess_abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.UserID != "user1" || got.ApplicationID != "app1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Tokens.RefreshToken != "refresh" {
		t.Fatalf("tokens not round-tripped: %+v", got.Tokens)
	}
	if !got.ExpiresAt.Equal(expiresAt) {
		t.Fatalf("expected expires_at %v, got %v", expiresAt, got.ExpiresAt)
	}
	if got.UserAgent == nil || *got.UserAgent != *session.UserAgent {
		t.Fatalf("user agent not round-tripped: %v", got.UserAgent)
	}

	remaining := server.TTL("sso:session:sess_abc")
	if remaining <= 24*time.Hour || remaining > 48*time.Hour {
		t.Fatalf("expected ttl covering window plus retention, got %v", remaining)
	}
	indexed, err := server.IsMember("sso:session:user:user1", "sess_abc")
	if err != nil {
		t.Fatalf("index lookup failed: %v", err)
	}
	if !indexed {
		t.Fatalf("session not indexed under user")
	}
}

func TestSessionRepository_CreateValidatesInput(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "", nil)

	expiresAt := time.Now().UTC().Add(time.Hour)
	if err := repo.Create(context.Background(), testSession("", "user1", expiresAt)); err == nil {
		t.Fatalf("expected error for empty session id")
	}
	if err := repo.Create(context.Background(), testSession("sess_1", "", expiresAt)); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestSessionRepository_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "  "); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank id, got %v", err)
	}
}

func TestSessionRepository_UpdatePreservesTTL(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	expiresAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	session := testSession("sess_abc", "user1", expiresAt)
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	before := server.TTL("sso:session:sess_abc")

	session.Tokens.AccessToken = "access-rotated"
	session.AccessTokenExpiresAt = session.AccessTokenExpiresAt.Add(time.Hour)
	if err := repo.Update(context.Background(), session); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := repo.Get(context.Background(), "sess_abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Tokens.AccessToken != "access-rotated" {
		t.Fatalf("update not persisted: %+v", got.Tokens)
	}

	after := server.TTL("sso:session:sess_abc")
	if after <= 0 || after > before {
		t.Fatalf("expected ttl preserved, before=%v after=%v", before, after)
	}
}

func TestSessionRepository_UpdateMissingSession(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	session := testSession("sess_ghost", "user1", time.Now().UTC().Add(time.Hour))
	if err := repo.Update(context.Background(), session); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_ListByUserPrunesStaleEntries(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	for _, id := range []string{"sess_a", "sess_b"} {
		if err := repo.Create(context.Background(), testSession(id, "user1", expiresAt)); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}
	// Simulate a record that aged out of Redis while its index entry survived.
	if _, err := server.SetAdd("sso:session:user:user1", "sess_stale"); err != nil {
		t.Fatalf("seed stale index entry: %v", err)
	}

	sessions, err := repo.ListByUser(context.Background(), "user1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	stale, err := server.IsMember("sso:session:user:user1", "sess_stale")
	if err != nil {
		t.Fatalf("index lookup failed: %v", err)
	}
	if stale {
		t.Fatalf("stale index entry not pruned")
	}
}

func TestSessionRepository_ListByUserEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	sessions, err := repo.ListByUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestSessionRepository_DeleteIsIdempotent(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewSessionRepository(client, "sso:session", nil)

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	if err := repo.Create(context.Background(), testSession("sess_abc", "user1", expiresAt)); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := repo.Delete(context.Background(), "sess_abc"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if server.Exists("sso:session:sess_abc") {
		t.Fatalf("session key not deleted")
	}
	member, err := server.IsMember("sso:session:user:user1", "sess_abc")
	if err != nil {
		t.Fatalf("index lookup failed: %v", err)
	}
	if member {
		t.Fatalf("index entry not removed")
	}

	if err := repo.Delete(context.Background(), "sess_abc"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
}
