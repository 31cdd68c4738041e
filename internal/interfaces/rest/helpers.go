package rest

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/constants"
	"github.com/nick-gallo-ethico/risk-intelligence-platform-sub016/pkg/errors"
)

// OrganizationFromContext returns the organization set by the auth middleware
func OrganizationFromContext(c *gin.Context) string {
	return c.GetString(constants.ContextKeyOrganization)
}

// ActorFromContext returns the acting user id, or nil for pure
// service-to-service calls.
func ActorFromContext(c *gin.Context) *string {
	actor := c.GetString(constants.ContextKeyActor)
	if actor == "" {
		return nil
	}
	return &actor
}

// RespondAppError sends a standardised JSON error response using pkg/errors
func RespondAppError(c *gin.Context, err error) {
	code := errors.GetHTTPStatus(err)
	errorCode := errors.GetErrorCode(err)
	message := err.Error()

	if code >= 500 {
		log.Printf("❌ ERROR [%d] %s %s: %s", code, c.Request.Method, c.Request.URL.Path, message)
	}

	c.JSON(code, gin.H{
		"message": message,
		"code":    errorCode,
		"data":    nil,
	})
}

// RespondData sends a success envelope
func RespondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

// BindJSON binds JSON and returns true if successful. If failed, it sends bad request error.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		RespondAppError(c, errors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}

// BindOptionalJSON binds JSON when a body is present; an empty body is fine.
// Used by operations whose request fields are all optional.
func BindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return BindJSON(c, obj)
}

// RespondNoContent sends 204 with no body
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
