package testutil

import (
	"strconv"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/vipauto/autoelectric-crm/middleware"
	"github.com/vipauto/autoelectric-crm/models"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer string, role models.Role) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Role: role,
		},
	}
}

// SetMockAuthContext sets up the context exactly as EnsureValidToken followed by LoadCurrentMaster do
func SetMockAuthContext(c *gin.Context, master *models.Master) {
	subject := strconv.FormatUint(uint64(master.ID), 10)
	c.Set(middleware.UserIDKey, subject)
	c.Set(middleware.ValidatedClaimsKey, MockValidatedClaims(subject, "autoelectric-crm", master.Role))
	c.Set(middleware.CurrentMasterKey, master)
}

// MockAuthMiddleware authenticates every request as master
func MockAuthMiddleware(master *models.Master) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, master)
		c.Next()
	}
}
