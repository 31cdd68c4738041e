package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/auth"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// RequireServiceToken verifies the Bearer service token and places the
// calling organization and acting user (if any) on the request context.
// Every engine operation is organization-scoped through these values.
func RequireServiceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			respondUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := auth.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondUnauthorized(c, "invalid token")
			return
		}
		if claims.Session.OrganizationID == "" {
			respondUnauthorized(c, "token carries no organization")
			return
		}

		c.Set(constants.ContextKeyOrganization, claims.Session.OrganizationID)
		if claims.Session.ActorID != nil {
			c.Set(constants.ContextKeyActor, *claims.Session.ActorID)
		}
		c.Next()
	}
}

func respondUnauthorized(c *gin.Context, reason string) {
	err := errors.NewUnauthorizedError(reason)
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{
		"message": err.Error(),
		"code":    err.Code(),
	})
}
