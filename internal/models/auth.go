package models

import "github.com/golang-jwt/jwt/v5"

// UserRole is the role claim carried in access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleOperator   UserRole = "OPERATOR"
	// RoleDisplay is used by the panel screens themselves: read-only plus event subscription.
	RoleDisplay UserRole = "DISPLAY"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleOperator, RoleDisplay:
		return true
	}
	return false
}

// JWTClaims represents the access token payload issued by the backend.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	UnitIDs  []string `json:"unit_ids,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessUnit reports whether the caller may act on the given unit. Empty scope means every unit.
func (c *JWTClaims) CanAccessUnit(unitID string) bool {
	if c == nil {
		return false
	}
	if c.Role == RoleSuperAdmin || len(c.UnitIDs) == 0 {
		return true
	}
	for _, id := range c.UnitIDs {
		if id == unitID {
			return true
		}
	}
	return false
}
