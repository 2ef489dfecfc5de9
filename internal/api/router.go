// Package api is the HTTP surface: HTML pages for accounts and the home view,
// JSON endpoints for captures.
package api

import (
	"net/http" // HTTP status codes

	"calorie_tracker/internal/middleware" // Session guard

	"github.com/gin-gonic/gin" // Gin web framework
)

// Deps are the services behind the routes
type Deps struct {
	Auth        Authenticator // Session manager
	Captures    Capturer      // Capture orchestrator
	Estimator   Pinger        // Optional, enables /health?deep=1
	HomeEntries int           // Ledger days shown on /home
	Cookie      CookieOptions // Session cookie settings
}

// NewRouter wires every route onto engine
func NewRouter(engine *gin.Engine, deps Deps) *gin.Engine {
	engine.SetHTMLTemplate(Templates())

	engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/register")
	})
	engine.GET("/health", HealthHandler(deps.Estimator))

	// Account routes
	engine.GET("/register", RegisterPageHandler())
	engine.POST("/register", RegisterHandler(deps.Auth))
	engine.GET("/login", LoginPageHandler())
	engine.POST("/login", LoginHandler(deps.Auth, deps.Cookie))

	// Pages (redirect to login without a session)
	pages := engine.Group("")
	pages.Use(middleware.RequireSession(deps.Auth, middleware.RedirectToLogin))
	pages.GET("/home", HomeHandler(deps.Captures, deps.HomeEntries))
	pages.GET("/logout", LogoutHandler(deps.Auth, deps.Cookie))

	// JSON endpoints (401 without a session)
	data := engine.Group("")
	data.Use(middleware.RequireSession(deps.Auth, middleware.RespondJSON))
	data.POST("/capture", CaptureHandler(deps.Captures))
	data.GET("/history", HistoryHandler(deps.Captures))

	return engine
}
