// Package middleware provides authentication, request validation and error recovery for the Gin web framework.
package middleware

import (
	contextutils "studyprogress/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// UserIDKey is the key used to store the user ID in the session and the gin context
const UserIDKey = "user_id"

// RequireAuth returns a middleware that requires a session carrying a user ID.
// The ID is copied to the gin context and the request context.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := sessionUserID(session.Get(UserIDKey))
		if !ok {
			HandleAppError(c, contextutils.WrapError(contextutils.ErrUnauthorized, "Authentication required"))
			c.Abort()
			return
		}

		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(contextutils.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// sessionUserID accepts the numeric encodings a session store may hand back
func sessionUserID(v interface{}) (int, bool) {
	var id int
	switch n := v.(type) {
	case int:
		id = n
	case int64:
		id = int(n)
	case float64:
		// JSON-backed stores decode numbers as float64
		id = int(n)
	default:
		return 0, false
	}
	return id, id > 0
}
