package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sqldeck/sqldeck/internal/model"
	"github.com/sqldeck/sqldeck/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrTenantDisabled     = errors.New("tenant account disabled")
)

type APIKeyPrincipal struct {
	KeyID    int64
	TenantID int64
}

type JWTPrincipal struct {
	TenantID int64
	Email    string
}

type AuthService struct {
	store     *store.Store
	jwtSecret []byte
}

func NewAuthService(st *store.Store, jwtSecret string) *AuthService {
	return &AuthService{
		store:     st,
		jwtSecret: []byte(jwtSecret),
	}
}

// Login verifies a tenant's email and password and returns the account on
// success. The last-login timestamp is updated in the background.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.Tenant, error) {
	tenant, err := s.store.GetTenantByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !tenant.IsActive {
		return nil, ErrTenantDisabled
	}

	hash := hashKey(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(tenant.PasswordHash)) != 1 {
		return nil, ErrInvalidCredentials
	}

	// Update last login timestamp (fire and forget)
	go s.store.UpdateTenantLastLogin(context.Background(), tenant.ID)

	return tenant, nil
}

// ValidateAPIKey checks the provided raw API key against stored key hashes.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKeyPrincipal, error) {
	hash := hashKey(rawKey)

	key, err := s.store.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !key.IsActive {
		return nil, ErrKeyRevoked
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return &APIKeyPrincipal{
		KeyID:    key.ID,
		TenantID: key.TenantID,
	}, nil
}

// ValidateJWT verifies a JWT bearer token and returns the associated tenant identity.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	claims := &jwtClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{
		TenantID: claims.TenantID,
		Email:    claims.Email,
	}, nil
}

// IssueJWT creates a new signed JWT token for the given tenant.
func (s *AuthService) IssueJWT(ctx context.Context, tenantID int64, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		TenantID: tenantID,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "sqldeck",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type jwtClaims struct {
	TenantID int64  `json:"tenant_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func hashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}
