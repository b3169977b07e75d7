package security

import (
	"strings"
	"testing"
)

func TestGenerateSecureToken(t *testing.T) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if len(token) == 0 {
		t.Fatalf("expected non-empty token")
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("expected URL-safe encoding, got %s", token)
	}

	if _, err := GenerateSecureToken(0); err == nil {
		t.Fatalf("expected error for non-positive length")
	}
}

func TestGenerateSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := GenerateSessionID()
		if err != nil {
			t.Fatalf("GenerateSessionID returned error: %v", err)
		}
		if !strings.HasPrefix(id, "sess_") {
			t.Fatalf("expected sess_ prefix, got %s", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate session id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
