package middleware

import (
	"context"  // Context for session lookups
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"calorie_tracker/internal/domain" // Domain models and errors

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// SessionCookie is the name of the cookie carrying the signed session token
const SessionCookie = "session"

// Context keys set by RequireSession
const (
	UserKey         = "user"
	UserIDKey       = "userID"
	SessionTokenKey = "sessionToken"
)

// SessionResolver resolves a session token to its user
type SessionResolver interface {
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// Mode decides how an unauthenticated request is turned away
type Mode int

const (
	// RedirectToLogin sends browsers to the login page
	RedirectToLogin Mode = iota
	// RespondJSON answers with 401 and a JSON error body
	RespondJSON
)

// RequireSession validates the session cookie and stores the user in the context
func RequireSession(sessions SessionResolver, mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(SessionCookie) // Missing cookie leaves token empty
		user, err := sessions.CurrentUser(c.Request.Context(), token)
		if err != nil {
			// A broken session store is a server fault, not a logged-out user
			var up *domain.UpstreamError
			if errors.As(err, &up) {
				logrus.WithFields(logrus.Fields{"error": err.Error(), "path": c.FullPath()}).Error("Session lookup failed")
				if mode == RespondJSON {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				} else {
					c.AbortWithStatus(http.StatusInternalServerError)
				}
				return
			}
			if mode == RespondJSON {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Set(UserKey, user)          // Authenticated user
		c.Set(UserIDKey, user.ID)     // Store userID in context
		c.Set(SessionTokenKey, token) // Needed by logout
		c.Next()                      // Proceed to the next handler
	}
}

// CurrentUser returns the user stored by RequireSession
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}
