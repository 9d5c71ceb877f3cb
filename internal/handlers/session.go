package handlers

import (
	"studyprogress/internal/middleware"

	"github.com/gin-gonic/gin"
)

// GetUserIDFromSession returns the user ID RequireAuth placed on the context.
// Returns (0, false) if the request was not authenticated.
func GetUserIDFromSession(c *gin.Context) (int, bool) {
	userID := c.GetInt(middleware.UserIDKey)
	if userID <= 0 {
		return 0, false
	}
	return userID, true
}
