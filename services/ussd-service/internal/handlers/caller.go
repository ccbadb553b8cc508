package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grigta/simgate/pkg/middleware"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

const contextCaller = "caller"

// ResolveCaller loads the authenticated user so every core call receives it explicitly.
// The stored role replaces the one in the token: demoting or blocking a user takes effect
// on their next request.
func (h *HTTPHandler) ResolveCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.users.Get(c.Request.Context(), c.GetString(middleware.ContextUserID))
		if err != nil {
			if models.IsKind(err, models.KindNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown user"})
				return
			}
			h.respondError(c, err)
			c.Abort()
			return
		}
		if user.Status != models.UserStatusAccept {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account is not active"})
			return
		}

		c.Set(contextCaller, user)
		c.Set(middleware.ContextRole, string(user.Role))
		c.Next()
	}
}

func caller(c *gin.Context) *models.User {
	user, _ := c.MustGet(contextCaller).(*models.User)
	return user
}
