package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

func claims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	typed, ok := value.(*models.JWTClaims)
	return typed, ok && typed != nil
}

// RequireRoles enforces role-based access control. Superadmins pass every check.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles)+1)
	allowed[models.RoleSuperAdmin] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		current, ok := claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[current.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireUnitAccess rejects callers whose token is scoped to other units than the one named by
// the route parameter.
func RequireUnitAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !current.CanAccessUnit(c.Param(param)) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "unit outside of token scope"))
			c.Abort()
			return
		}
		c.Next()
	}
}
