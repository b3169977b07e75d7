package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/sso-broker/internal/core/domain"
)

type fakeProfileManager struct {
	updateErr error
	updates   []map[string]string
}

func (f *fakeProfileManager) UpdateProfile(ctx context.Context, accessToken string, attributes map[string]string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, attributes)
	return nil
}

func (f *fakeProfileManager) GetProfile(ctx context.Context, accessToken string) (map[string]string, error) {
	return nil, nil
}

func TestProfileUpdateMirrorsLocally(t *testing.T) {
	users := newFakeUserRepository(domain.User{
		ID:          "user-1",
		DisplayName: "Old Name",
		CreatedAt:   time.Now().UTC(),
	})
	profiles := &fakeProfileManager{}
	service := NewProfileService(profiles, users, nil)

	attributes := map[string]string{
		"name":         "New Name",
		"phone_number": "+15550100",
		"gender":       "female",
	}
	if err := service.Update(context.Background(), "user-1", "access-token", attributes); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if len(profiles.updates) != 1 {
		t.Fatalf("expected one provider update, got %d", len(profiles.updates))
	}

	user, err := users.GetByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if user.DisplayName != "New Name" {
		t.Fatalf("display name not mirrored: %s", user.DisplayName)
	}
	if user.PhoneNumber == nil || *user.PhoneNumber != "+15550100" {
		t.Fatalf("phone not mirrored: %v", user.PhoneNumber)
	}
	if user.ProfileAttributes["gender"] != "female" {
		t.Fatalf("custom attribute not mirrored: %v", user.ProfileAttributes)
	}
}

func TestProfileUpdateSkipsLocalWriteWhenUnchanged(t *testing.T) {
	phone := "+15550100"
	users := newFakeUserRepository(domain.User{
		ID:          "user-1",
		DisplayName: "Alice",
		PhoneNumber: &phone,
	})
	profiles := &fakeProfileManager{}
	service := NewProfileService(profiles, users, nil)

	attributes := map[string]string{
		"name":         "Alice",
		"phone_number": phone,
	}
	if err := service.Update(context.Background(), "user-1", "access-token", attributes); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if users.updateCalls != 0 {
		t.Fatalf("expected no local update, got %d", users.updateCalls)
	}
}

func TestProfileUpdateStopsOnProviderFailure(t *testing.T) {
	users := newFakeUserRepository(domain.User{ID: "user-1", DisplayName: "Alice"})
	profiles := &fakeProfileManager{updateErr: errors.New("provider down")}
	service := NewProfileService(profiles, users, nil)

	err := service.Update(context.Background(), "user-1", "access-token", map[string]string{"name": "Mallory"})
	if err == nil {
		t.Fatalf("expected error when provider update fails")
	}

	user, getErr := users.GetByID(context.Background(), "user-1")
	if getErr != nil {
		t.Fatalf("GetByID returned error: %v", getErr)
	}
	if user.DisplayName != "Alice" {
		t.Fatalf("local record must stay untouched, got %s", user.DisplayName)
	}
}

func TestProfileUpdateValidatesInput(t *testing.T) {
	service := NewProfileService(&fakeProfileManager{}, newFakeUserRepository(), nil)

	if err := service.Update(context.Background(), "user-1", "", map[string]string{"name": "A"}); err == nil {
		t.Fatalf("expected error for missing access token")
	}
	if err := service.Update(context.Background(), "user-1", "token", nil); err == nil {
		t.Fatalf("expected error for empty attribute set")
	}
}

func TestProfileUpdateUnknownUser(t *testing.T) {
	service := NewProfileService(&fakeProfileManager{}, newFakeUserRepository(), nil)

	err := service.Update(context.Background(), "ghost", "token", map[string]string{"name": "A"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
