package api

import (
	"context"  // Context for service calls
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"time"     // Cookie lifetime

	"calorie_tracker/internal/domain"     // Domain models and errors
	"calorie_tracker/internal/middleware" // Session cookie name

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Authenticator is the part of the session manager the handlers need
type Authenticator interface {
	Register(ctx context.Context, email, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// RegisterForm is the registration form body
type RegisterForm struct {
	Email    string `form:"email"`    // Contact address, unique
	Username string `form:"username"` // Login name, unique
	Password string `form:"password"` // Plain text, hashed by the service
}

// LoginForm is the login form body
type LoginForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// pageData is what the auth pages render
type pageData struct {
	Flash     string // Message shown above the form
	FlashKind string // success or danger
	Email     string // Echoed back on a failed registration
	Username  string // Echoed back on a failed attempt
}

// Flash messages carried across redirects by the ?flash= query parameter
var flashes = map[string]string{
	"registered": "Registration successful! Please log in.",
	"logged_out": "Logged out successfully",
}

// CookieOptions controls the session cookie
type CookieOptions struct {
	Secure bool          // Only send over HTTPS
	MaxAge time.Duration // Matches the session lifetime
}

// RegisterPageHandler renders the registration form
func RegisterPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "register.html", pageData{})
	}
}

// RegisterHandler creates an account and sends the user to the login page
func RegisterHandler(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form RegisterForm // Bind form body to struct
		if err := c.ShouldBind(&form); err != nil {
			// If binding fails, return bad request
			c.HTML(http.StatusBadRequest, "register.html", pageData{Flash: "Invalid request", FlashKind: "danger"})
			return
		}
		echo := pageData{Email: form.Email, Username: form.Username, FlashKind: "danger"}
		_, err := authn.Register(c.Request.Context(), form.Email, form.Username, form.Password)
		switch {
		case err == nil:
			// Registered, continue to login
			c.Redirect(http.StatusFound, "/login?flash=registered")
		case errors.Is(err, domain.ErrConflict):
			// Username or email taken; the message does not say which
			echo.Flash = "Username or email already exists."
			c.HTML(http.StatusConflict, "register.html", echo)
		case domain.IsValidation(err):
			echo.Flash = err.Error()
			c.HTML(http.StatusBadRequest, "register.html", echo)
		default:
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Registration failed")
			echo.Flash = "Registration failed, please try again."
			c.HTML(http.StatusInternalServerError, "register.html", echo)
		}
	}
}

// LoginPageHandler renders the login form with an optional flash message
func LoginPageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		data := pageData{}
		if msg, ok := flashes[c.Query("flash")]; ok {
			data.Flash, data.FlashKind = msg, "success"
		}
		c.HTML(http.StatusOK, "login.html", data)
	}
}

// LoginHandler checks credentials, sets the session cookie and redirects home
func LoginHandler(authn Authenticator, cookie CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var form LoginForm // Bind form body to struct
		if err := c.ShouldBind(&form); err != nil {
			c.HTML(http.StatusBadRequest, "login.html", pageData{Flash: "Invalid request", FlashKind: "danger"})
			return
		}
		token, _, err := authn.Login(c.Request.Context(), form.Username, form.Password)
		if err != nil {
			failed := pageData{Username: form.Username, FlashKind: "danger"}
			if errors.Is(err, domain.ErrInvalidCredentials) {
				// Same answer for unknown user and wrong password
				failed.Flash = "Invalid credentials"
				c.HTML(http.StatusUnauthorized, "login.html", failed)
				return
			}
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Login failed")
			failed.Flash = "Login failed, please try again."
			c.HTML(http.StatusInternalServerError, "login.html", failed)
			return
		}
		setSessionCookie(c, token, cookie)
		c.Redirect(http.StatusFound, "/home")
	}
}

// LogoutHandler ends the session and clears the cookie; ?all=1 ends every session of the user
func LogoutHandler(authn Authenticator, cookie CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString(middleware.SessionTokenKey) // Set by the session guard
		logout := authn.Logout
		if c.Query("all") == "1" {
			logout = authn.LogoutAll
		}
		if err := logout(c.Request.Context(), token); err != nil {
			// The cookie is cleared regardless; the record expires on its own
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Warn("Logout could not delete session")
		}
		clearSessionCookie(c, cookie)
		c.Redirect(http.StatusFound, "/login?flash=logged_out")
	}
}

func setSessionCookie(c *gin.Context, token string, opts CookieOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(opts.MaxAge.Seconds()), "/", "", opts.Secure, true)
}

func clearSessionCookie(c *gin.Context, opts CookieOptions) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", opts.Secure, true)
}
