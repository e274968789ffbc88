package auth

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"beaconattend/internal/apperr"
	"beaconattend/internal/response"
)

const claimsKey = "claims"

// Authenticate enforces bearer JWT tokens signed with HS256. now may be nil.
func Authenticate(signingKey, issuer string, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			response.Error(c, apperr.Clone(apperr.ErrUnauthorized, "missing bearer token"))
			return
		}
		claims, err := Parse(strings.TrimSpace(authz[len("bearer "):]), signingKey, issuer, now)
		if err != nil {
			response.Error(c, apperr.Wrap(apperr.Clone(apperr.ErrUnauthorized, "invalid token"), err))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries none of roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, apperr.ErrUnauthorized)
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		response.Error(c, apperr.ErrForbidden)
	}
}

// ClaimsFrom returns the claims set by Authenticate.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// UserKey charges rate limits to the signed-in user, falling back to the
// client address.
func UserKey(c *gin.Context) string {
	if claims, ok := ClaimsFrom(c); ok && claims.Subject != "" {
		return claims.Subject
	}
	return c.ClientIP()
}
