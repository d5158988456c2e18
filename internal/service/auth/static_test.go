package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/campusmarket/internal/domain"
)

func TestStaticService_Authenticate(t *testing.T) {
	t.Parallel()

	svc := NewStaticService(map[string]string{"token-alice": "user-alice"}, true)

	tests := []struct {
		name       string
		credential string
		wantUser   string
		wantErr    error
	}{
		{name: "known token", credential: "token-alice", wantUser: "user-alice"},
		{name: "dev credential", credential: "dev:user-bob", wantUser: "user-bob"},
		{name: "empty dev credential", credential: "dev:", wantErr: domain.ErrInvalidCredential},
		{name: "unknown token", credential: "token-mallory", wantErr: domain.ErrInvalidCredential},
		{name: "empty credential", credential: "", wantErr: domain.ErrInvalidCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := svc.Authenticate(context.Background(), tt.credential)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if userID != tt.wantUser {
				t.Fatalf("expected user %q, got %q", tt.wantUser, userID)
			}
		})
	}
}

func TestStaticService_DevDisabled(t *testing.T) {
	t.Parallel()

	svc := NewStaticService(nil, false)
	if _, err := svc.Authenticate(context.Background(), "dev:user-bob"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestStaticService_AddToken(t *testing.T) {
	t.Parallel()

	svc := NewStaticService(nil, false)
	svc.AddToken("token-carol", "user-carol")

	userID, err := svc.Authenticate(context.Background(), "token-carol")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if userID != "user-carol" {
		t.Fatalf("expected user-carol, got %q", userID)
	}
}

func TestMockService(t *testing.T) {
	t.Parallel()

	mock := NewMockService("user-1")
	userID, err := mock.Authenticate(context.Background(), "whatever")
	if err != nil || userID != "user-1" {
		t.Fatalf("unexpected result: %q, %v", userID, err)
	}

	mock.Err = domain.ErrInvalidCredential
	if _, err := mock.Authenticate(context.Background(), "whatever"); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected configured error, got %v", err)
	}
	if mock.Calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.Calls)
	}
}
