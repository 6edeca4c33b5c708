package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pulse/pkg/auth"
	"pulse/pkg/models"
)

// JWTTestHelper provides utilities for JWT testing
type JWTTestHelper struct {
	Secret []byte
}

// NewJWTTestHelper creates a new JWT test helper with a default test secret
func NewJWTTestHelper() *JWTTestHelper {
	return &JWTTestHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// GenerateValidJWT generates a valid JWT token for testing
func (h *JWTTestHelper) GenerateValidJWT(userID, tenantID, email string, role models.Role) (string, error) {
	return auth.GenerateJWT(userID, tenantID, email, string(role), h.Secret)
}

// GenerateExpiredJWT generates an expired JWT token for testing
func (h *JWTTestHelper) GenerateExpiredJWT(userID, tenantID, email string, role models.Role) (string, error) {
	claims := &auth.Claims{
		UserID:   userID,
		TenantID: tenantID,
		Email:    email,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Secret)
}

// TestUser represents a test user for JWT generation
type TestUser struct {
	UserID   string
	TenantID string
	Email    string
	Role     models.Role
}

// Principal returns the principal the auth middleware would derive for u
func (u TestUser) Principal() *auth.Principal {
	return &auth.Principal{UserID: u.UserID, TenantID: u.TenantID, Email: u.Email, Role: u.Role}
}

// Token generates a JWT for the user, panicking on failure (test-only)
func (u TestUser) Token(helper *JWTTestHelper) string {
	token, err := helper.GenerateValidJWT(u.UserID, u.TenantID, u.Email, u.Role)
	if err != nil {
		panic(err)
	}
	return token
}

// BearerHeader returns an Authorization header value for the user
func (u TestUser) BearerHeader(helper *JWTTestHelper) string {
	return "Bearer " + u.Token(helper)
}

// Users for multi-tenant testing
var (
	GlobalAdmin = TestUser{
		UserID: "admin-0",
		Email:  "admin@example.com",
		Role:   models.RoleAdmin,
	}

	EditorTenant1 = TestUser{
		UserID:   "editor-tenant1",
		TenantID: "tenant-1",
		Email:    "editor1@example.com",
		Role:     models.RoleEditor,
	}

	ViewerTenant1 = TestUser{
		UserID:   "viewer-tenant1",
		TenantID: "tenant-1",
		Email:    "viewer1@example.com",
		Role:     models.RoleViewer,
	}

	EditorTenant2 = TestUser{
		UserID:   "editor-tenant2",
		TenantID: "tenant-2",
		Email:    "editor2@example.com",
		Role:     models.RoleEditor,
	}

	ViewerTenant2 = TestUser{
		UserID:   "viewer-tenant2",
		TenantID: "tenant-2",
		Email:    "viewer2@example.com",
		Role:     models.RoleViewer,
	}
)
