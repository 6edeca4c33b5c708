package auth

import (
	"github.com/gin-gonic/gin"

	"pulse/pkg/ctxkeys"
	"pulse/pkg/models"
)

// Principal is the authenticated caller of a request or websocket session
type Principal struct {
	UserID   string
	TenantID string
	Email    string
	Role     models.Role
}

// PrincipalFromClaims builds a principal from validated JWT claims
func PrincipalFromClaims(claims *Claims) *Principal {
	if claims == nil {
		return nil
	}
	return &Principal{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Role:     models.Role(claims.Role),
	}
}

// IsAdmin reports whether the principal holds the oversight role
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == models.RoleAdmin
}

// CanAccessTenant reports whether the principal may act on resources owned by tenantID.
func (p *Principal) CanAccessTenant(tenantID string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.TenantID != "" && p.TenantID == tenantID
}

// CanViewVideo applies tenant isolation; viewers additionally only see
// published, cleared videos.
func (p *Principal) CanViewVideo(v *models.Video) bool {
	if !p.CanAccessTenant(v.TenantID()) {
		return false
	}
	return p.Role != models.RoleViewer || v.VisibleToViewer()
}

// CanEditVideo reports whether the principal may change or remove v
func (p *Principal) CanEditVideo(v *models.Video) bool {
	return p.IsAdmin() || p.IsTenantEditor(v)
}

// IsTenantEditor reports whether the principal is an editor of the tenant owning v.
// Only such principals may change a video's title or publication state.
func (p *Principal) IsTenantEditor(v *models.Video) bool {
	return p != nil && p.Role == models.RoleEditor && p.TenantID != "" && p.TenantID == v.TenantID()
}

// SetPrincipal stores the principal and its flattened claims on the gin context
func SetPrincipal(c *gin.Context, p *Principal) {
	c.Set(string(ctxkeys.KeyPrincipal), p)
	c.Set(string(ctxkeys.KeyUserID), p.UserID)
	c.Set(string(ctxkeys.KeyTenantID), p.TenantID)
	c.Set(string(ctxkeys.KeyEmail), p.Email)
	c.Set(string(ctxkeys.KeyRole), string(p.Role))
}

// GetPrincipal returns the principal stored by the auth middleware
func GetPrincipal(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(string(ctxkeys.KeyPrincipal))
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok && p != nil
}
