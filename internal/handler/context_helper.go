package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/middleware"
	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := c.Get(middleware.ContextUserKey)
	current, _ := claims.(*models.JWTClaims)
	return current
}

// requireUnitScope writes 403 and returns false when the record's unit is outside the token scope.
// Routes addressed by record id cannot be checked by RequireUnitAccess before the record is loaded.
func requireUnitScope(c *gin.Context, unitID string) bool {
	if claimsFromContext(c).CanAccessUnit(unitID) {
		return true
	}
	response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "unit outside of token scope"))
	return false
}
