package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pulse/pkg/ctxkeys"
	"pulse/pkg/models"
)

// TokenFromRequest extracts a bearer credential from the Authorization header,
// the token query parameter (media elements and websockets cannot set headers),
// or the access_token cookie. ok is false when the header is present but malformed.
func TokenFromRequest(c *gin.Context) (token string, ok bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if q := c.Query("token"); q != "" {
		return q, true
	}
	if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
		return cookieToken, true
	}
	return "", true
}

// JWTAuthMiddleware validates the session token and stores the principal on the context.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := TokenFromRequest(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized"})
			return
		}

		claims, err := ValidateJWT(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		principal := PrincipalFromClaims(claims)
		if !principal.Role.Valid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown role"})
			return
		}

		SetPrincipal(c, principal)
		c.Set(string(ctxkeys.KeyJWTToken), token)
		c.Set(string(ctxkeys.KeyAuthType), "jwt")
		c.Next()
	}
}

// RequireRoles rejects principals whose role is not in roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		for _, role := range roles {
			if p.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
	}
}
