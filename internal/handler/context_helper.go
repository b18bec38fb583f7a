package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/quillstage/quillstage-api/internal/middleware"
	"github.com/quillstage/quillstage-api/internal/models"
)

// claimsFromContext pulls the authenticated claims set by the JWT
// middleware, returning nil on unauthenticated requests.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	if claims, ok := value.(*models.JWTClaims); ok {
		return claims
	}
	return nil
}
