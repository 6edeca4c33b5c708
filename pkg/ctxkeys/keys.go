// Package ctxkeys defines typed context keys to avoid SA1029 lint warnings
// and prevent key collisions across packages.
package ctxkeys

import "context"

// Key is a typed context key to prevent collisions.
type Key string

// Auth context keys
const (
	KeyUserID    Key = "user_id"
	KeyTenantID  Key = "tenant_id"
	KeyEmail     Key = "email"
	KeyRole      Key = "role"
	KeyJWTToken  Key = "jwt_token"
	KeyAuthType  Key = "auth_type"
	KeyPrincipal Key = "principal"
)

// Request context keys
const (
	KeyRequestID Key = "request_id"
)

// GetRequestID extracts request_id from context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(KeyRequestID).(string); ok {
		return v
	}
	return ""
}
