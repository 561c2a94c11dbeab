package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-fee-api/internal/middleware"
	"github.com/noah-isme/hostel-fee-api/internal/models"
)

// claimsFromContext returns the authenticated admin's claims, or nil on
// routes outside the JWT group.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}

// tokenFromContext returns the raw bearer token, used by logout to
// revoke the session it belongs to.
func tokenFromContext(c *gin.Context) string {
	value, ok := c.Get(middleware.ContextTokenKey)
	if !ok {
		return ""
	}
	token, _ := value.(string)
	return token
}
