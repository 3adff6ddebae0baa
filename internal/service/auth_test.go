package service

import (
	"context"
	"testing"
	"time"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
)

func newTestAuth(t *testing.T) (*AuthService, *store.Store) {
	t.Helper()
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	auth := NewAuthService(st, "test-secret-key-for-jwt")
	return auth, st
}

func createTenant(t *testing.T, st *store.Store, email, password string) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{
		Email:        email,
		PasswordHash: store.HashAPIKey(password),
		IsActive:     true,
	}
	if err := st.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	return tenant
}

func TestLogin(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()
	tenant := createTenant(t, st, "alice@example.com", "hunter22")

	got, err := auth.Login(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != tenant.ID {
		t.Errorf("ID: got %d, want %d", got.ID, tenant.ID)
	}

	if _, err := auth.Login(ctx, "alice@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", "hunter22"); err != ErrInvalidCredentials {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	// Issue a token
	token, err := auth.IssueJWT(ctx, 42, "alice@example.com", 1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	// Validate the token
	principal, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.TenantID != 42 {
		t.Errorf("TenantID: got %d, want 42", principal.TenantID)
	}
	if principal.Email != "alice@example.com" {
		t.Errorf("Email: got %q, want %q", principal.Email, "alice@example.com")
	}
}

func TestJWTExpired(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	// Issue a token with negative TTL (already expired)
	token, err := auth.IssueJWT(ctx, 1, "test@test.com", -1*time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}

	_, err = auth.ValidateJWT(ctx, token)
	if err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTInvalidToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	ctx := context.Background()

	_, err := auth.ValidateJWT(ctx, "garbage.token.here")
	if err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestAPIKeyValidation(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()
	tenant := createTenant(t, st, "alice@example.com", "hunter22")

	// Create an API key
	rawKey := "sqldeck_test_key_abcdef123456"
	hash := store.HashAPIKey(rawKey)
	key := &model.APIKey{
		KeyHash:   hash,
		KeyPrefix: rawKey[:8],
		Label:     "test",
		TenantID:  tenant.ID,
		IsActive:  true,
	}
	if err := st.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	// Validate the key
	principal, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if principal.TenantID != tenant.ID {
		t.Errorf("TenantID: got %d, want %d", principal.TenantID, tenant.ID)
	}

	// Invalid key
	_, err = auth.ValidateAPIKey(ctx, "wrong_key")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAPIKeyRevoked(t *testing.T) {
	auth, st := newTestAuth(t)
	ctx := context.Background()
	tenant := createTenant(t, st, "alice@example.com", "hunter22")

	rawKey := "sqldeck_revoke_test_key"
	hash := store.HashAPIKey(rawKey)
	key := &model.APIKey{
		KeyHash:   hash,
		KeyPrefix: rawKey[:8],
		Label:     "revoke-test",
		TenantID:  tenant.ID,
		IsActive:  true,
	}
	st.CreateAPIKey(ctx, key)

	// Revoke
	st.RevokeAPIKey(ctx, key.ID)

	// Should fail
	_, err := auth.ValidateAPIKey(ctx, rawKey)
	if err != ErrKeyRevoked {
		t.Errorf("expected ErrKeyRevoked, got %v", err)
	}
}
